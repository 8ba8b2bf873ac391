package plugin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Manager.
type Option func(*managerConfig)

type managerConfig struct {
	logger          *slog.Logger
	registerer      prometheus.Registerer
	tracerProvider  trace.TracerProvider
	poolSize        int
	callbackTimeout time.Duration
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
	}
}

// WithLogger sets the logger. Plugin contexts derive their loggers from it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics registers the manager collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *managerConfig) {
		c.registerer = reg
	}
}

// WithTracerProvider sets the provider lifecycle spans are recorded with.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *managerConfig) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

// WithPumpPoolSize caps the number of event pumps. Each subscription holds
// one pump for as long as the plugin receives events; zero means no cap.
func WithPumpPoolSize(n int) Option {
	return func(c *managerConfig) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithCallbackTimeout sets a deadline on every callback's context.
// Callbacks that ignore their context are not interrupted.
func WithCallbackTimeout(d time.Duration) Option {
	return func(c *managerConfig) {
		if d > 0 {
			c.callbackTimeout = d
		}
	}
}

// antsLogger routes pool diagnostics into slog.
type antsLogger struct {
	logger *slog.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
