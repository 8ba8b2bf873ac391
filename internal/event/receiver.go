package event

import (
	"context"
	"sync"
	"sync/atomic"
)

// Receiver is a subscriber's handle on one event type's broadcast stream.
//
// It buffers up to the registry capacity. When the buffer is full the oldest
// event is overwritten and the next Recv reports a *LaggedError, so a slow or
// absent subscriber never blocks an emitter.
type Receiver struct {
	id         uint64
	typeID     TypeID
	eventID    EventID
	subscriber PluginID

	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Receiver)

	lagged    atomic.Uint64
	lagTotal  atomic.Uint64
	delivered atomic.Uint64
}

func newReceiver(id uint64, ch *channel, subscriber PluginID, capacity int) *Receiver {
	return &Receiver{
		id:         id,
		typeID:     ch.typeID,
		eventID:    ch.eventID,
		subscriber: subscriber,
		ch:         make(chan Event, capacity),
		done:       make(chan struct{}),
	}
}

// TypeID returns the type id the receiver is bound to.
func (r *Receiver) TypeID() TypeID {
	return r.typeID
}

// EventID returns the event id the receiver is bound to.
func (r *Receiver) EventID() EventID {
	return r.eventID
}

// Subscriber returns the plugin that owns this receiver.
func (r *Receiver) Subscriber() PluginID {
	return r.subscriber
}

// Recv blocks until an event is available, the receiver is closed or ctx is done.
// If events were overwritten since the last call it returns a *LaggedError
// first; the following calls continue with the oldest retained event.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	if n := r.lagged.Swap(0); n > 0 {
		return nil, &LaggedError{Skipped: n}
	}
	select {
	case ev := <-r.ch:
		return ev, nil
	case <-r.done:
		return nil, ErrReceiverClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryRecv returns the next buffered event without blocking.
// Lag is reported through Lagged rather than an error.
func (r *Receiver) TryRecv() (Event, bool) {
	select {
	case <-r.done:
		return nil, false
	default:
	}
	select {
	case ev := <-r.ch:
		return ev, true
	default:
		return nil, false
	}
}

// Lagged returns the total number of events this receiver has lost.
func (r *Receiver) Lagged() uint64 {
	return r.lagTotal.Load()
}

// Delivered returns the number of events handed to this receiver.
func (r *Receiver) Delivered() uint64 {
	return r.delivered.Load()
}

// Len returns the number of buffered events.
func (r *Receiver) Len() int {
	return len(r.ch)
}

// Done returns a channel closed when the receiver is closed.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// IsClosed reports whether the receiver has been closed.
func (r *Receiver) IsClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Close detaches the receiver from its stream. Buffered events stay readable
// through Drain. Close is idempotent.
func (r *Receiver) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		if r.onClose != nil {
			r.onClose(r)
		}
	})
}

// Drain discards all buffered events and returns how many were discarded.
func (r *Receiver) Drain() int {
	n := 0
	for {
		select {
		case <-r.ch:
			n++
		default:
			return n
		}
	}
}

// deliver pushes an event, overwriting the oldest one when full.
// The data channel is never closed, so a concurrent Close cannot make this panic.
// It returns whether the event was queued and how many events were overwritten.
func (r *Receiver) deliver(ev Event) (bool, uint64) {
	if r.IsClosed() {
		return false, 0
	}
	var overwritten uint64
	for {
		select {
		case r.ch <- ev:
			r.delivered.Add(1)
			return true, overwritten
		default:
		}
		select {
		case <-r.ch:
			r.lagged.Add(1)
			r.lagTotal.Add(1)
			overwritten++
		default:
		}
	}
}
