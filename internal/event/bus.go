package event

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Bus accepts typed emissions and fans them out to every receiver subscribed
// to the event's type at emission time.
//
// Emit never blocks on a receiver. Successive emissions of one type reach a
// given receiver in the order they were emitted; there is no ordering across
// types or across receivers.
type Bus struct {
	registry *Registry
	metrics  *busMetrics
	logger   *slog.Logger

	emitted    atomic.Uint64
	rejected   atomic.Uint64
	deliveries atomic.Uint64
	lagged     atomic.Uint64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...Option) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	registry := NewRegistry(config.capacity)
	return &Bus{
		registry: registry,
		metrics:  newBusMetrics(config.registerer, registry),
		logger:   config.logger.With("component", "event.bus"),
	}
}

// Registry returns the registry backing the bus.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// AddPlugin makes a plugin known to the registry.
func (b *Bus) AddPlugin(id PluginID, name string) error {
	return b.registry.AddPlugin(id, name)
}

// RemovePlugin forgets a plugin. See Registry.RemovePlugin.
func (b *Bus) RemovePlugin(id PluginID) int {
	n := b.registry.RemovePlugin(id)
	b.logger.Debug("plugin removed from bus", "plugin_id", id.String(), "receivers_closed", n)
	return n
}

// Register declares that owner produces events of the given id.
func (b *Bus) Register(owner PluginID, id EventID) (TypeID, error) {
	return b.registry.Register(owner, id)
}

// Subscribe returns a receiver for a type id.
func (b *Bus) Subscribe(subscriber PluginID, typeID TypeID) (*Receiver, error) {
	return b.registry.Subscribe(subscriber, typeID)
}

// SubscribeID returns a receiver for an event id.
func (b *Bus) SubscribeID(subscriber PluginID, id EventID) (*Receiver, error) {
	return b.registry.SubscribeID(subscriber, id)
}

// Unsubscribe closes a receiver.
func (b *Bus) Unsubscribe(rx *Receiver) {
	b.registry.Unsubscribe(rx)
}

// Emit fans an event out to the current subscribers of its type.
//
// It returns ErrNilEvent for a nil event and ErrUnknownEventType when the
// type was never registered; in both cases nothing is delivered. Having no
// subscribers is not an error.
func (b *Bus) Emit(ev Event) error {
	if ev == nil {
		b.reject("nil")
		return ErrNilEvent
	}

	typeID := ev.TypeID()
	ch := b.registry.lookup(typeID)
	if ch == nil {
		b.reject("unknown_type")
		return fmt.Errorf("emit %s: %w", typeID, ErrUnknownEventType)
	}

	label := ch.eventID.String()
	b.emitted.Add(1)
	b.metrics.emitted.WithLabelValues(label).Inc()

	var delivered, overwritten uint64
	for _, rx := range ch.snapshot() {
		queued, lost := rx.deliver(ev)
		if queued {
			delivered++
		}
		if lost > 0 {
			overwritten += lost
			b.logger.Debug("receiver lagging",
				"event", label,
				"subscriber", rx.subscriber.String(),
				"overwritten", lost,
			)
		}
	}

	if delivered > 0 {
		b.deliveries.Add(delivered)
		b.metrics.deliveries.WithLabelValues(label).Add(float64(delivered))
	}
	if overwritten > 0 {
		b.lagged.Add(overwritten)
		b.metrics.lagged.WithLabelValues(label).Add(float64(overwritten))
	}
	return nil
}

func (b *Bus) reject(reason string) {
	b.rejected.Add(1)
	b.metrics.rejected.WithLabelValues(reason).Inc()
}

// Owner returns the plugin owning a type id.
func (b *Bus) Owner(typeID TypeID) (PluginID, bool) {
	return b.registry.Owner(typeID)
}

// Lookup returns the EventID registered for a type id.
func (b *Bus) Lookup(typeID TypeID) (EventID, bool) {
	return b.registry.Lookup(typeID)
}

// Types returns every registered EventID.
func (b *Bus) Types() []EventID {
	return b.registry.Types()
}

// Stats returns a snapshot of bus statistics.
func (b *Bus) Stats() Stats {
	return Stats{
		Emitted:    b.emitted.Load(),
		Rejected:   b.rejected.Load(),
		Deliveries: b.deliveries.Load(),
		Lagged:     b.lagged.Load(),
		EventTypes: b.registry.TypeCount(),
		Receivers:  b.registry.ReceiverCount(),
	}
}
