package lua

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/plugin"
)

// Callback names a script may define.
const (
	CallbackPreInitialize = "pre_initialize"
	CallbackInitialize    = "initialize"
	CallbackTick          = "tick"
	CallbackStop          = "stop"
	CallbackHandleEvent   = "handle_event"
)

var callbackNames = []string{
	CallbackPreInitialize,
	CallbackInitialize,
	CallbackTick,
	CallbackStop,
	CallbackHandleEvent,
}

// Script is a plugin implemented in Lua. The script's chunk must return a
// table describing the plugin:
//
//	return {
//	    name = "echo",
//	    version = "1.0.0",
//	    events = { "echoed" },
//	    subscriptions = { "server::message" },
//	    handle_event = function(ctx, ev) ... end,
//	}
//
// Optional fields are namespace, and the callbacks pre_initialize(ctx),
// initialize(ctx), tick(ctx, dt_seconds), stop(ctx) and handle_event(ctx, ev).
// A Lua error in a callback is returned as a *ScriptError and crashes the
// plugin.
type Script struct {
	state  *State
	bridge *Bridge
	logger *slog.Logger

	name          string
	version       plugin.Version
	namespace     event.Namespace
	events        []string
	subscriptions []event.EventID
	callbacks     map[string]*lua.LFunction

	// Context table, built on first use. Guarded by the state mutex.
	pc    *plugin.Context
	table *lua.LTable
}

var _ plugin.Plugin = (*Script)(nil)

// Option configures a Script.
type Option func(*scriptConfig)

type scriptConfig struct {
	logger    *slog.Logger
	timeout   time.Duration
	chunkName string
}

// WithLogger sets the logger for print output and load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *scriptConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithExecutionTimeout bounds every callback that has no deadline of its own.
func WithExecutionTimeout(d time.Duration) Option {
	return func(c *scriptConfig) {
		c.timeout = d
	}
}

// WithChunkName sets the name Lua error messages refer to.
func WithChunkName(name string) Option {
	return func(c *scriptConfig) {
		c.chunkName = name
	}
}

// LoadFile loads a plugin script from disk.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Script, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin script: %w", err)
	}
	opts = append([]Option{WithChunkName(filepath.Base(path))}, opts...)
	return Load(ctx, string(code), opts...)
}

// Load runs a plugin script in a fresh sandboxed state and reads its
// descriptor table.
func Load(ctx context.Context, code string, opts ...Option) (*Script, error) {
	config := scriptConfig{
		logger:    slog.Default(),
		chunkName: "plugin.lua",
	}
	for _, opt := range opts {
		opt(&config)
	}

	state := NewState(
		WithStateLogger(config.logger),
		WithStateExecutionTimeout(config.timeout),
	)

	s, err := load(ctx, state, code, config)
	if err != nil {
		_ = state.Close()
		return nil, err
	}
	return s, nil
}

func load(ctx context.Context, state *State, code string, config scriptConfig) (*Script, error) {
	ret, err := state.Eval(ctx, code, config.chunkName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	desc, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%w: script must return a table, got %s", ErrInvalidScript, ret.Type())
	}

	s := &Script{
		state:     state,
		bridge:    NewBridge(state.L),
		callbacks: make(map[string]*lua.LFunction),
	}

	err = state.Do(ctx, func(*lua.LState) error {
		return s.readDescriptor(desc)
	})
	if err != nil {
		return nil, err
	}

	s.logger = config.logger.With("plugin", s.name, "runtime", "lua")
	return s, nil
}

func (s *Script) readDescriptor(desc *lua.LTable) error {
	name, ok := s.bridge.GetTableString(desc, "name")
	if !ok {
		return fmt.Errorf("%w: missing name", ErrInvalidScript)
	}
	if err := plugin.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	s.name = name

	versionStr, ok := s.bridge.GetTableString(desc, "version")
	if !ok {
		return fmt.Errorf("%w: missing version", ErrInvalidScript)
	}
	version, err := plugin.ParseVersion(versionStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	s.version = version

	s.namespace = event.PluginNamespace(name)
	if ns, ok := s.bridge.GetTableString(desc, "namespace"); ok {
		s.namespace = event.Namespace(ns)
	}

	if s.events, err = s.bridge.GetTableStrings(desc, "events"); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}

	subs, err := s.bridge.GetTableStrings(desc, "subscriptions")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	for _, sub := range subs {
		id, err := event.ParseEventID(sub)
		if err != nil {
			return fmt.Errorf("%w: subscription: %v", ErrInvalidScript, err)
		}
		s.subscriptions = append(s.subscriptions, id)
	}

	for _, cb := range callbackNames {
		v := desc.RawGetString(cb)
		switch fn := v.(type) {
		case *lua.LFunction:
			s.callbacks[cb] = fn
		case *lua.LNilType:
		default:
			return fmt.Errorf("%w: %s must be a function, got %s", ErrInvalidScript, cb, v.Type())
		}
	}
	return nil
}

// Name implements plugin.Plugin.
func (s *Script) Name() string { return s.name }

// Version implements plugin.Plugin.
func (s *Script) Version() plugin.Version { return s.version }

// Namespace implements plugin.Namespacer.
func (s *Script) Namespace() event.Namespace { return s.namespace }

// Events implements plugin.Provider.
func (s *Script) Events() []string { return s.events }

// Subscriptions implements plugin.Plugin.
func (s *Script) Subscriptions() []event.EventID { return s.subscriptions }

// HasCallback reports whether the script defines a callback.
func (s *Script) HasCallback(name string) bool {
	_, ok := s.callbacks[name]
	return ok
}

// State returns the script's Lua state.
func (s *Script) State() *State { return s.state }

// PreInitialize implements plugin.Plugin.
func (s *Script) PreInitialize(ctx context.Context, pc *plugin.Context) error {
	return s.call(ctx, pc, CallbackPreInitialize, nil)
}

// Initialize implements plugin.Plugin.
func (s *Script) Initialize(ctx context.Context, pc *plugin.Context) error {
	return s.call(ctx, pc, CallbackInitialize, nil)
}

// Tick implements plugin.Plugin. dt is passed in seconds.
func (s *Script) Tick(ctx context.Context, pc *plugin.Context, dt time.Duration) error {
	return s.call(ctx, pc, CallbackTick, func(*lua.LState) []lua.LValue {
		return []lua.LValue{lua.LNumber(dt.Seconds())}
	})
}

// Stop implements plugin.Plugin. The Lua state is closed afterwards.
func (s *Script) Stop(ctx context.Context, pc *plugin.Context) error {
	err := s.call(ctx, pc, CallbackStop, nil)
	if closeErr := s.state.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// HandleEvent implements plugin.Plugin. The event is passed as a table with
// id, owner and payload fields.
func (s *Script) HandleEvent(ctx context.Context, pc *plugin.Context, ev event.Event) error {
	return s.call(ctx, pc, CallbackHandleEvent, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{s.eventTable(L, ev)}
	})
}

// Close releases the Lua state without running stop.
func (s *Script) Close() error {
	return s.state.Close()
}

func (s *Script) call(ctx context.Context, pc *plugin.Context, name string, args func(*lua.LState) []lua.LValue) error {
	fn, ok := s.callbacks[name]
	if !ok {
		return nil
	}

	err := s.state.Do(ctx, func(L *lua.LState) error {
		callArgs := []lua.LValue{s.contextTable(L, pc)}
		if args != nil {
			callArgs = append(callArgs, args(L)...)
		}
		_, err := CallFunc(L, fn, callArgs...)
		return err
	})
	if err != nil {
		return &ScriptError{Plugin: s.name, Callback: name, Err: err}
	}
	return nil
}

func (s *Script) eventTable(L *lua.LState, ev event.Event) *lua.LTable {
	t := L.CreateTable(0, 3)
	if id, ok := event.IDOf(ev); ok {
		t.RawSetString("id", lua.LString(id.String()))
		t.RawSetString("name", lua.LString(id.Name))
	} else {
		t.RawSetString("id", lua.LString(ev.TypeID().String()))
	}
	t.RawSetString("owner", lua.LString(ev.Owner().String()))
	t.RawSetString("payload", s.bridge.ToLuaValue(ev.Payload()))
	return t
}

// resolveEventID accepts "ns::name" or a bare name in the plugin namespace.
func resolveEventID(pc *plugin.Context, s string) (event.EventID, error) {
	if strings.Contains(s, event.IDSeparator) {
		return event.ParseEventID(s)
	}
	return pc.EventID(s)
}
