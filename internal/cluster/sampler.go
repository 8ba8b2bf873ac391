package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// SampleFunc returns the current load in [0, 1].
type SampleFunc func(ctx context.Context) (float32, error)

// CPULoad samples whole-machine CPU utilisation since the previous call.
func CPULoad(ctx context.Context) (float32, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return float32(percents[0] / 100), nil
}

// LoadSampler periodically publishes the local load to a cluster.
type LoadSampler struct {
	cluster  Cluster
	interval time.Duration
	sample   SampleFunc
	logger   *slog.Logger
}

// SamplerOption configures a LoadSampler.
type SamplerOption func(*LoadSampler)

// WithSampleFunc replaces the CPU sampler.
func WithSampleFunc(fn SampleFunc) SamplerOption {
	return func(s *LoadSampler) {
		if fn != nil {
			s.sample = fn
		}
	}
}

// WithSamplerLogger sets the logger.
func WithSamplerLogger(logger *slog.Logger) SamplerOption {
	return func(s *LoadSampler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewLoadSampler creates a sampler publishing every interval.
func NewLoadSampler(c Cluster, interval time.Duration, opts ...SamplerOption) *LoadSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &LoadSampler{
		cluster:  c,
		interval: interval,
		sample:   CPULoad,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run samples until ctx is cancelled. Sampling errors are logged and the
// loop continues. Returns nil on cancellation.
func (s *LoadSampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SampleOnce(ctx)
		}
	}
}

// SampleOnce takes one sample and publishes it.
func (s *LoadSampler) SampleOnce(ctx context.Context) {
	load, err := s.sample(ctx)
	if err != nil {
		s.logger.Warn("load sample failed", "error", err)
		return
	}
	if err := s.cluster.UpdateLoad(ctx, load); err != nil {
		s.logger.Warn("load update failed", "load", load, "error", err)
	}
}
