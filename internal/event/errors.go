package event

import (
	"errors"
	"strconv"
)

// Sentinel errors for the event registry and bus.
var (
	// ErrAlreadyRegistered is returned when an event type is already owned by another plugin.
	ErrAlreadyRegistered = errors.New("event type already registered")

	// ErrUnknownEventType is returned when subscribing to or emitting a type nobody registered.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrUnknownPlugin is returned when a plugin id was never added to the registry.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrPluginExists is returned when a plugin id is added twice.
	ErrPluginExists = errors.New("plugin already added")

	// ErrNilEvent is returned when a nil event is emitted.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrInvalidNamespace is returned when a namespace is empty or malformed.
	ErrInvalidNamespace = errors.New("invalid event namespace")

	// ErrInvalidEventID is returned when an event id cannot be parsed.
	ErrInvalidEventID = errors.New("invalid event id")

	// ErrReceiverClosed is returned by Recv once a receiver has been closed.
	ErrReceiverClosed = errors.New("receiver closed")
)

// RegistrationError describes a failed register or subscribe call.
type RegistrationError struct {
	// Op is the registry operation ("register" or "subscribe").
	Op string

	// EventID is the externally addressable id involved, if known.
	EventID EventID

	// TypeID is the hashed type id involved.
	TypeID TypeID

	// Plugin is the plugin that made the call.
	Plugin PluginID

	// Owner is the current owner of the type, for collisions.
	Owner PluginID

	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	target := e.TypeID.String()
	if !e.EventID.IsZero() {
		target = e.EventID.String()
	}
	msg := e.Op + " " + target + " by plugin " + e.Plugin.String() + ": " + e.Err.Error()
	if !e.Owner.IsZero() {
		msg += " (owner " + e.Owner.String() + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// LaggedError is returned by Receiver.Recv when the receiver fell behind and
// older events were overwritten. The receiver stays usable.
type LaggedError struct {
	// Skipped is the number of events lost since the previous receive.
	Skipped uint64
}

// Error implements the error interface.
func (e *LaggedError) Error() string {
	return "receiver lagged, skipped " + strconv.FormatUint(e.Skipped, 10) + " events"
}
