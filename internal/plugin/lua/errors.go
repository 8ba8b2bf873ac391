package lua

import (
	"errors"
	"fmt"
)

// Errors for Lua state and script operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutionTimeout is returned when a call ran past its deadline.
	ErrExecutionTimeout = errors.New("lua execution timeout")

	// ErrInvalidScript is returned when a script does not describe a plugin.
	ErrInvalidScript = errors.New("invalid plugin script")

	// ErrNoEntryPoint is returned for a plugin directory without init.lua
	// or plugin.lua.
	ErrNoEntryPoint = errors.New("plugin directory has no entry point")
)

// ScriptError is a Lua error raised while running a plugin callback.
type ScriptError struct {
	// Plugin is the plugin name.
	Plugin string

	// Callback is the Lua callback that failed, e.g. "tick".
	Callback string

	// Err is the error reported by the Lua VM.
	Err error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("lua plugin %q: %s: %v", e.Plugin, e.Callback, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}
