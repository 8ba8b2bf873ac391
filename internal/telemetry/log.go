// Package telemetry sets up the process-wide logger and trace exporter.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a structured logger whose level can change at runtime.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// LoggerOption configures NewLogger.
type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	out io.Writer
}

// WithOutput sets the log destination. Defaults to stderr.
func WithOutput(w io.Writer) LoggerOption {
	return func(c *loggerConfig) {
		if w != nil {
			c.out = w
		}
	}
}

// NewLogger builds a logger. format is "text" or "json"; level is any name
// slog.Level accepts ("debug", "info", "warn", "error", "info+2").
func NewLogger(level, format string, opts ...LoggerOption) (*Logger, error) {
	cfg := loggerConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	lv := new(slog.LevelVar)
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(cfg.out, handlerOpts)
	case "json":
		h = slog.NewJSONHandler(cfg.out, handlerOpts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return &Logger{Logger: slog.New(h), level: lv}, nil
}

// SetLevel changes the level of this logger and every logger derived from it.
func (l *Logger) SetLevel(level slog.Level) {
	if l.level.Level() == level {
		return
	}
	l.level.Set(level)
	l.Info("log level changed", "level", level.String())
}

// Level returns the current level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}
