package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Func is a guarded callback.
type Func func(ctx context.Context) error

// PanicHandler is called after a callback panicked.
type PanicHandler func(name string, value any, stack []byte)

// Executor runs plugin callbacks with panic recovery and timing.
// It never interrupts a running callback; a timeout only cancels the
// callback's context.
type Executor struct {
	panicHandler PanicHandler
	logger       *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithPanicHandler sets the panic handler.
func WithPanicHandler(h PanicHandler) Option {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// WithLogger sets the logger used by the default panic handler.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.panicHandler == nil {
		e.panicHandler = e.logPanic
	}
	return e
}

func (e *Executor) logPanic(name string, value any, stack []byte) {
	e.logger.Error("callback panicked",
		"callback", name,
		"panic", value,
		"stack", string(stack),
	)
}

// Execute runs fn and returns the result. A context that is already done
// skips the call.
func (e *Executor) Execute(ctx context.Context, name string, fn Func) (result Result) {
	select {
	case <-ctx.Done():
		return Result{
			Error:   ctx.Err(),
			Skipped: true,
		}
	default:
	}

	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Error = nil
			result.Panicked = true
			result.PanicValue = r
			result.Stack = stack

			if e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(name, r, stack)
				}()
			}
		}
	}()

	result.Error = fn(ctx)
	return result
}

// ExecuteWithTimeout runs fn with a deadline on its context.
// fn must observe ctx for the deadline to have any effect.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, name string, fn Func, timeout time.Duration) Result {
	if timeout <= 0 {
		return e.Execute(ctx, name, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.Execute(ctx, name, fn)
}
