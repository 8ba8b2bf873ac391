package dispatch

import (
	"fmt"
	"time"
)

// Result is the outcome of one guarded call.
type Result struct {
	// Error is the error returned by the callback, or the context error when
	// the call was skipped.
	Error error

	// Panicked is true if the callback panicked.
	Panicked bool

	// PanicValue is the recovered value.
	PanicValue any

	// Stack is the goroutine stack at the panic.
	Stack []byte

	// Duration is how long the callback ran.
	Duration time.Duration

	// Skipped is true if the callback never ran.
	Skipped bool
}

// OK reports whether the callback ran and returned nil.
func (r Result) OK() bool {
	return !r.Skipped && !r.Panicked && r.Error == nil
}

// Err returns the failure as an error: a *PanicError for panics, the
// callback's error otherwise, and nil on success.
func (r Result) Err() error {
	if r.Panicked {
		return &PanicError{Value: r.PanicValue, Stack: r.Stack}
	}
	return r.Error
}

// PanicError wraps a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
