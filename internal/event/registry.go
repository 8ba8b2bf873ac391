package event

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default per-receiver buffer size.
const DefaultCapacity = 1024

// channel is the broadcast stream of one event type.
// Its subscriber list is copy-on-write so emission reads it without locking.
type channel struct {
	typeID  TypeID
	eventID EventID

	// owner is guarded by Registry.mu. It is zero while the type is orphaned.
	owner PluginID

	mu   sync.Mutex // serializes writers of subs
	subs atomic.Pointer[[]*Receiver]
}

func newChannel(id EventID, owner PluginID) *channel {
	ch := &channel{
		typeID:  id.TypeID(),
		eventID: id,
		owner:   owner,
	}
	empty := make([]*Receiver, 0)
	ch.subs.Store(&empty)
	return ch
}

// snapshot returns the receivers subscribed right now.
func (c *channel) snapshot() []*Receiver {
	return *c.subs.Load()
}

func (c *channel) add(rx *Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.subs.Load()
	next := make([]*Receiver, len(old), len(old)+1)
	copy(next, old)
	next = append(next, rx)
	c.subs.Store(&next)
}

func (c *channel) remove(rx *Receiver) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := *c.subs.Load()
	for i, s := range old {
		if s == rx {
			next := make([]*Receiver, 0, len(old)-1)
			next = append(next, old[:i]...)
			next = append(next, old[i+1:]...)
			c.subs.Store(&next)
			return true
		}
	}
	return false
}

// Registry maps event types to their owning plugin and broadcast stream.
// Registration and subscription are serialized; delivery is not.
type Registry struct {
	mu sync.RWMutex

	capacity int

	// Known plugins by id
	plugins map[PluginID]string

	// Broadcast streams by type id
	channels map[TypeID]*channel

	// Open receivers per subscriber
	receivers map[PluginID]map[uint64]*Receiver

	nextReceiver atomic.Uint64
}

// NewRegistry creates an empty registry whose receivers buffer capacity events.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity:  capacity,
		plugins:   make(map[PluginID]string),
		channels:  make(map[TypeID]*channel),
		receivers: make(map[PluginID]map[uint64]*Receiver),
	}
}

// Capacity returns the per-receiver buffer size.
func (r *Registry) Capacity() int {
	return r.capacity
}

// AddPlugin makes a plugin known so it may own and subscribe to event types.
func (r *Registry) AddPlugin(id PluginID, name string) error {
	if id.IsZero() {
		return fmt.Errorf("zero plugin id: %w", ErrUnknownPlugin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("plugin %s: %w", id, ErrPluginExists)
	}
	r.plugins[id] = name
	return nil
}

// HasPlugin reports whether the plugin id is known.
func (r *Registry) HasPlugin(id PluginID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.plugins[id]
	return ok
}

// RemovePlugin forgets a plugin, closes all of its receivers and orphans the
// event types it owned. Subscribers of orphaned types keep their receivers; a
// later Register of the same EventID adopts the stream.
// Returns the number of receivers closed.
func (r *Registry) RemovePlugin(id PluginID) int {
	r.mu.Lock()
	if _, exists := r.plugins[id]; !exists {
		r.mu.Unlock()
		return 0
	}
	delete(r.plugins, id)

	owned := r.receivers[id]
	delete(r.receivers, id)

	closing := make([]*Receiver, 0, len(owned))
	for _, rx := range owned {
		if ch, ok := r.channels[rx.typeID]; ok {
			ch.remove(rx)
		}
		closing = append(closing, rx)
	}

	for _, ch := range r.channels {
		if ch.owner == id {
			ch.owner = PluginID{}
		}
	}
	r.mu.Unlock()

	// Close outside the lock; the detach hook finds nothing left to do.
	for _, rx := range closing {
		rx.Close()
	}
	return len(closing)
}

// Register declares that owner produces events of the given id.
//
// It fails with ErrAlreadyRegistered when another live plugin owns the type,
// or when a different EventID hashes to the same TypeID. Registering the same
// id twice from the same owner is a no-op.
func (r *Registry) Register(owner PluginID, id EventID) (TypeID, error) {
	if err := id.Validate(); err != nil {
		return 0, &RegistrationError{Op: "register", EventID: id, Plugin: owner, Err: err}
	}
	typeID := id.TypeID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.plugins[owner]; !known {
		return 0, &RegistrationError{Op: "register", EventID: id, TypeID: typeID, Plugin: owner, Err: ErrUnknownPlugin}
	}

	ch, exists := r.channels[typeID]
	if !exists {
		r.channels[typeID] = newChannel(id, owner)
		return typeID, nil
	}

	switch {
	case ch.eventID != id:
		return 0, &RegistrationError{
			Op:      "register",
			EventID: id,
			TypeID:  typeID,
			Plugin:  owner,
			Owner:   ch.owner,
			Err:     fmt.Errorf("type id collides with %s: %w", ch.eventID, ErrAlreadyRegistered),
		}
	case ch.owner == owner:
		return typeID, nil
	case ch.owner.IsZero():
		ch.owner = owner
		return typeID, nil
	default:
		return 0, &RegistrationError{
			Op:      "register",
			EventID: id,
			TypeID:  typeID,
			Plugin:  owner,
			Owner:   ch.owner,
			Err:     ErrAlreadyRegistered,
		}
	}
}

// Subscribe returns a receiver bound to the type's broadcast stream.
// Subscribing before any plugin registered the type is an error.
func (r *Registry) Subscribe(subscriber PluginID, typeID TypeID) (*Receiver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, known := r.plugins[subscriber]; !known {
		return nil, &RegistrationError{Op: "subscribe", TypeID: typeID, Plugin: subscriber, Err: ErrUnknownPlugin}
	}

	ch, exists := r.channels[typeID]
	if !exists {
		return nil, &RegistrationError{Op: "subscribe", TypeID: typeID, Plugin: subscriber, Err: ErrUnknownEventType}
	}

	rx := newReceiver(r.nextReceiver.Add(1), ch, subscriber, r.capacity)
	rx.onClose = r.detach
	ch.add(rx)

	byID := r.receivers[subscriber]
	if byID == nil {
		byID = make(map[uint64]*Receiver)
		r.receivers[subscriber] = byID
	}
	byID[rx.id] = rx

	return rx, nil
}

// SubscribeID subscribes by EventID.
func (r *Registry) SubscribeID(subscriber PluginID, id EventID) (*Receiver, error) {
	rx, err := r.Subscribe(subscriber, id.TypeID())
	if err != nil {
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			regErr.EventID = id
		}
		return nil, err
	}
	return rx, nil
}

// Unsubscribe closes a receiver and removes it from its stream.
func (r *Registry) Unsubscribe(rx *Receiver) {
	if rx != nil {
		rx.Close()
	}
}

// detach is the receiver close hook.
func (r *Registry) detach(rx *Receiver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[rx.typeID]; ok {
		ch.remove(rx)
	}
	if byID := r.receivers[rx.subscriber]; byID != nil {
		delete(byID, rx.id)
		if len(byID) == 0 {
			delete(r.receivers, rx.subscriber)
		}
	}
}

// lookup returns the stream for a type id, or nil.
func (r *Registry) lookup(typeID TypeID) *channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.channels[typeID]
}

// Owner returns the plugin owning a type id. The second result is false for
// unknown and orphaned types.
func (r *Registry) Owner(typeID TypeID) (PluginID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[typeID]
	if !ok || ch.owner.IsZero() {
		return PluginID{}, false
	}
	return ch.owner, true
}

// Lookup returns the EventID registered for a type id.
func (r *Registry) Lookup(typeID TypeID) (EventID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[typeID]
	if !ok {
		return EventID{}, false
	}
	return ch.eventID, true
}

// Types returns every registered EventID, sorted by string form.
func (r *Registry) Types() []EventID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]EventID, 0, len(r.channels))
	for _, ch := range r.channels {
		ids = append(ids, ch.eventID)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].String() < ids[j].String()
	})
	return ids
}

// SubscriberCount returns the number of open receivers on a type.
func (r *Registry) SubscriberCount(typeID TypeID) int {
	ch := r.lookup(typeID)
	if ch == nil {
		return 0
	}
	return len(ch.snapshot())
}

// ReceiverCount returns the total number of open receivers.
func (r *Registry) ReceiverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, byID := range r.receivers {
		count += len(byID)
	}
	return count
}

// TypeCount returns the number of registered types.
func (r *Registry) TypeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.channels)
}
