package plugin

import (
	"errors"
	"fmt"

	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
)

// Plugin system errors.
var (
	// ErrNilPlugin is returned when a nil plugin is registered.
	ErrNilPlugin = errors.New("plugin is nil")

	// ErrInvalidPlugin is returned when plugin validation fails.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrInvalidVersion is returned for a malformed version string.
	ErrInvalidVersion = errors.New("version must be major.minor.hotfix")

	// ErrAlreadyLoaded is returned when a live plugin with the same name exists.
	ErrAlreadyLoaded = errors.New("plugin is already loaded")

	// ErrPluginNotFound is returned for an unknown plugin id or name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoPlugins is returned by Start when nothing was registered.
	ErrNoPlugins = errors.New("no plugins registered")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("plugin manager already started")

	// ErrNotStarted is returned when ticking a manager that was not started.
	ErrNotStarted = errors.New("plugin manager not started")

	// ErrInvalidTransition is returned for an illegal state change.
	ErrInvalidTransition = errors.New("invalid plugin state transition")

	// ErrNotOwner is returned when a plugin emits an event type it does not own.
	ErrNotOwner = errors.New("plugin does not own event type")

	// ErrContextRevoked is returned by every Context call after the plugin
	// stopped or crashed.
	ErrContextRevoked = errors.New("plugin context revoked")

	// ErrCapabilityUnavailable is returned when the server runs without the
	// network or cluster collaborator.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)

// Phase names the lifecycle step a plugin was in.
type Phase string

// Lifecycle phases.
const (
	PhaseRegister      Phase = "register"
	PhasePreInitialize Phase = "pre_initialize"
	PhaseSubscribe     Phase = "subscribe"
	PhaseInitialize    Phase = "initialize"
	PhaseTick          Phase = "tick"
	PhaseHandleEvent   Phase = "handle_event"
	PhaseStop          Phase = "stop"
)

// LifecycleError records why a plugin crashed.
type LifecycleError struct {
	// Plugin is the plugin name.
	Plugin string

	// ID is the plugin instance that crashed.
	ID event.PluginID

	// Version is the plugin version.
	Version Version

	// Phase is the failing lifecycle step.
	Phase Phase

	// Err is the callback error, or a *dispatch.PanicError.
	Err error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("plugin %q %s crashed in %s: %v", e.Plugin, e.Version, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned when a payload could not be serialized for a
// connection. Only that send is skipped.
type DeliveryError struct {
	// Plugin is the sending plugin.
	Plugin string

	// Conn is the destination connection.
	Conn network.ConnectionID

	// Format is the requested encoding.
	Format codec.Format

	// Err is the codec error.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("plugin %q: deliver to conn %s as %s: %v", e.Plugin, e.Conn, e.Format, e.Err)
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}
