package event

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReceiver_RecvAfterClose(t *testing.T) {
	f := newBusFixture(t)
	rx, _ := f.bus.SubscribeID(f.b, f.greet)

	rx.Close()
	rx.Close() // idempotent

	if _, err := recvTimeout(t, rx); !errors.Is(err, ErrReceiverClosed) {
		t.Errorf("Recv after Close error = %v, want ErrReceiverClosed", err)
	}
	select {
	case <-rx.Done():
	default:
		t.Error("Done() should be closed")
	}

	// Emission after close does not reach the receiver.
	_ = f.bus.Emit(New(f.greet, f.a, 1))
	if rx.Len() != 0 {
		t.Errorf("closed receiver buffered %d events", rx.Len())
	}
}

func TestReceiver_RecvContextCancelled(t *testing.T) {
	f := newBusFixture(t)
	rx, _ := f.bus.SubscribeID(f.b, f.greet)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := rx.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv error = %v, want DeadlineExceeded", err)
	}
}

func TestReceiver_Drain(t *testing.T) {
	f := newBusFixture(t)
	rx, _ := f.bus.SubscribeID(f.b, f.greet)

	for i := 0; i < 3; i++ {
		_ = f.bus.Emit(New(f.greet, f.a, i))
	}
	if n := rx.Drain(); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if rx.Len() != 0 {
		t.Errorf("Len() after Drain = %d", rx.Len())
	}
	if rx.Delivered() != 3 {
		t.Errorf("Delivered() = %d, want 3", rx.Delivered())
	}
}

func TestTyped_ValueSemantics(t *testing.T) {
	f := newBusFixture(t)
	ev := New(f.greet, f.a, greeting{Msg: "one"})

	clone := ev.Clone()
	ev.Data.Msg = "two"

	if g, _ := PayloadOf[greeting](clone); g.Msg != "one" {
		t.Errorf("clone changed with original: %q", g.Msg)
	}
	if _, ok := PayloadOf[int](clone); ok {
		t.Error("PayloadOf with wrong type should fail")
	}
	if _, ok := PayloadOf[int](nil); ok {
		t.Error("PayloadOf(nil) should fail")
	}
}
