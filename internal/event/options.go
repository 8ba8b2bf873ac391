package event

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Bus.
type Option func(*busConfig)

// busConfig contains configuration for the event bus.
type busConfig struct {
	// capacity is the buffer size of every receiver.
	capacity int

	// logger receives bus diagnostics.
	logger *slog.Logger

	// registerer exports bus metrics when set.
	registerer prometheus.Registerer
}

func defaultBusConfig() busConfig {
	return busConfig{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
}

// WithCapacity sets the per-receiver buffer size.
func WithCapacity(capacity int) Option {
	return func(c *busConfig) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers the bus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *busConfig) {
		c.registerer = reg
	}
}
