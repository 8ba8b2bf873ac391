package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutor_Success(t *testing.T) {
	e := NewExecutor()

	res := e.Execute(context.Background(), "ok", func(ctx context.Context) error {
		return nil
	})

	if !res.OK() {
		t.Errorf("expected OK result, got %+v", res)
	}
	if res.Err() != nil {
		t.Errorf("Err() = %v, want nil", res.Err())
	}
}

func TestExecutor_Error(t *testing.T) {
	e := NewExecutor()
	boom := errors.New("boom")

	res := e.Execute(context.Background(), "fail", func(ctx context.Context) error {
		return boom
	})

	if res.OK() {
		t.Error("expected failed result")
	}
	if !errors.Is(res.Err(), boom) {
		t.Errorf("Err() = %v, want %v", res.Err(), boom)
	}
}

func TestExecutor_Panic(t *testing.T) {
	var handled atomic.Bool
	e := NewExecutor(WithPanicHandler(func(name string, value any, stack []byte) {
		if name != "panicky" || value != "oops" || len(stack) == 0 {
			t.Errorf("panic handler got name=%q value=%v stack=%d bytes", name, value, len(stack))
		}
		handled.Store(true)
	}))

	res := e.Execute(context.Background(), "panicky", func(ctx context.Context) error {
		panic("oops")
	})

	if !res.Panicked {
		t.Fatal("expected Panicked")
	}
	if !handled.Load() {
		t.Error("panic handler not called")
	}

	var pe *PanicError
	if !errors.As(res.Err(), &pe) {
		t.Fatalf("Err() = %T, want *PanicError", res.Err())
	}
	if pe.Value != "oops" {
		t.Errorf("PanicError.Value = %v", pe.Value)
	}
}

func TestExecutor_PanicWithError(t *testing.T) {
	e := NewExecutor(WithPanicHandler(func(string, any, []byte) {}))
	cause := errors.New("cause")

	res := e.Execute(context.Background(), "p", func(ctx context.Context) error {
		panic(cause)
	})

	if !errors.Is(res.Err(), cause) {
		t.Errorf("Err() should unwrap to the panic value, got %v", res.Err())
	}
}

func TestExecutor_PanicHandlerPanics(t *testing.T) {
	e := NewExecutor(WithPanicHandler(func(string, any, []byte) {
		panic("handler")
	}))

	res := e.Execute(context.Background(), "p", func(ctx context.Context) error {
		panic("callback")
	})

	if !res.Panicked {
		t.Error("expected Panicked")
	}
}

func TestExecutor_SkipsDoneContext(t *testing.T) {
	e := NewExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	res := e.Execute(ctx, "skipped", func(ctx context.Context) error {
		called = true
		return nil
	})

	if called {
		t.Error("callback should not run")
	}
	if !res.Skipped || !errors.Is(res.Err(), context.Canceled) {
		t.Errorf("result = %+v", res)
	}
}

func TestExecutor_TimeoutCancelsContext(t *testing.T) {
	e := NewExecutor()

	res := e.ExecuteWithTimeout(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 10*time.Millisecond)

	if !errors.Is(res.Err(), context.DeadlineExceeded) {
		t.Errorf("Err() = %v, want DeadlineExceeded", res.Err())
	}
	if res.Duration < 10*time.Millisecond {
		t.Errorf("Duration = %v, want >= 10ms", res.Duration)
	}
}

func TestExecutor_TimeoutDoesNotInterrupt(t *testing.T) {
	e := NewExecutor()

	var finished atomic.Bool
	res := e.ExecuteWithTimeout(context.Background(), "stubborn", func(ctx context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}, 5*time.Millisecond)

	if !finished.Load() {
		t.Error("callback should run to completion")
	}
	if !res.OK() {
		t.Errorf("result = %+v", res)
	}
}
