package event

import "time"

// Event is the type-erased form every event takes on the bus.
// Implementations must be safe to share between goroutines; the bus never
// mutates an event it was handed.
type Event interface {
	// TypeID returns the dispatch key the event is routed by.
	TypeID() TypeID

	// Owner returns the plugin that registered the event type and produced the event.
	Owner() PluginID

	// Clone returns an independent copy of the event.
	Clone() Event

	// Payload returns the event data without its static type.
	Payload() any
}

// Typed is the standard concrete event, carrying a payload of type T.
// It has value semantics: copies handed to each subscriber are independent.
type Typed[T any] struct {
	id     EventID
	typeID TypeID
	owner  PluginID
	at     time.Time

	// Data is the event payload.
	Data T
}

// New creates a typed event for the given id and owner.
func New[T any](id EventID, owner PluginID, data T) Typed[T] {
	return Typed[T]{
		id:     id,
		typeID: id.TypeID(),
		owner:  owner,
		at:     time.Now(),
		Data:   data,
	}
}

// TypeID implements Event.
func (e Typed[T]) TypeID() TypeID {
	return e.typeID
}

// Owner implements Event.
func (e Typed[T]) Owner() PluginID {
	return e.owner
}

// Clone implements Event.
func (e Typed[T]) Clone() Event {
	return e
}

// Payload implements Event.
func (e Typed[T]) Payload() any {
	return e.Data
}

// EventID returns the externally addressable id of the event.
func (e Typed[T]) EventID() EventID {
	return e.id
}

// Time returns when the event was created.
func (e Typed[T]) Time() time.Time {
	return e.at
}

// Identified is implemented by events that know their EventID.
type Identified interface {
	EventID() EventID
}

// PayloadOf extracts a payload of type T from an event.
// The registry guarantees the tag-to-payload mapping, so a false result means
// the caller asked for the wrong type.
func PayloadOf[T any](e Event) (T, bool) {
	if e == nil {
		var zero T
		return zero, false
	}
	if typed, ok := e.(Typed[T]); ok {
		return typed.Data, true
	}
	v, ok := e.Payload().(T)
	return v, ok
}

// IDOf returns the EventID of an event if it carries one.
func IDOf(e Event) (EventID, bool) {
	if ide, ok := e.(Identified); ok {
		return ide.EventID(), true
	}
	return EventID{}, false
}
