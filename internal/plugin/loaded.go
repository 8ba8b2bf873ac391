package plugin

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/regioncore/internal/event"
)

// LoadedPlugin is the manager's entry for one plugin instance.
// Plugins never see LoadedPlugin values; they only hold their Context.
type LoadedPlugin struct {
	id        event.PluginID
	plugin    Plugin
	pctx      *Context
	namespace event.Namespace

	// callMu serializes every callback into the plugin.
	callMu sync.Mutex

	mu           sync.RWMutex
	state        State
	crash        *LifecycleError
	receivers    []*event.Receiver
	pumping      bool
	pumpCtx      context.Context
	pumpCancel   context.CancelFunc
	registeredAt time.Time
	activeAt     time.Time

	pumps sync.WaitGroup

	handled atomic.Uint64
	dropped atomic.Uint64
	ticks   atomic.Uint64
}

func newLoadedPlugin(id event.PluginID, p Plugin, ns event.Namespace) *LoadedPlugin {
	ctx, cancel := context.WithCancel(context.Background())
	return &LoadedPlugin{
		id:           id,
		plugin:       p,
		namespace:    ns,
		state:        StateUnregistered,
		pumpCtx:      ctx,
		pumpCancel:   cancel,
		registeredAt: time.Now(),
	}
}

// ID returns the plugin instance id.
func (lp *LoadedPlugin) ID() event.PluginID { return lp.id }

// Plugin returns the plugin implementation.
func (lp *LoadedPlugin) Plugin() Plugin { return lp.plugin }

// Name returns the plugin name.
func (lp *LoadedPlugin) Name() string { return lp.plugin.Name() }

// Version returns the plugin version.
func (lp *LoadedPlugin) Version() Version { return lp.plugin.Version() }

// Context returns the plugin's context.
func (lp *LoadedPlugin) Context() *Context { return lp.pctx }

// State returns the current state.
func (lp *LoadedPlugin) State() State {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.state
}

// Crash returns the crash record, or nil.
func (lp *LoadedPlugin) Crash() *LifecycleError {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return lp.crash
}

// transition moves the plugin to next if the state table allows it and
// returns the previous state.
func (lp *LoadedPlugin) transition(next State) (State, error) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	prev := lp.state
	if !prev.CanTransition(next) {
		return prev, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
	}
	lp.state = next
	if next == StateActive {
		lp.activeAt = time.Now()
	}
	return prev, nil
}

// markCrashed records the crash. It reports false if the plugin had already
// reached a terminal state, so a crash is only ever recorded once.
func (lp *LoadedPlugin) markCrashed(lerr *LifecycleError) (State, bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	prev := lp.state
	if prev.IsTerminal() {
		return prev, false
	}
	lp.state = StateCrashed
	lp.crash = lerr
	return prev, true
}

// stopPumps cancels every pump. Callbacks already running finish.
func (lp *LoadedPlugin) stopPumps() {
	lp.mu.Lock()
	lp.pumping = false
	lp.mu.Unlock()
	lp.pumpCancel()
}

// Report is a point-in-time summary of a loaded plugin.
type Report struct {
	ID            event.PluginID
	Name          string
	Version       Version
	Namespace     event.Namespace
	State         State
	Status        Status
	Subscriptions int
	Ticks         uint64
	Handled       uint64
	Dropped       uint64
	RegisteredAt  time.Time
	ActiveAt      time.Time
	Crash         *LifecycleError
}

// Report returns a summary of the plugin.
func (lp *LoadedPlugin) Report() Report {
	lp.mu.RLock()
	defer lp.mu.RUnlock()

	return Report{
		ID:            lp.id,
		Name:          lp.plugin.Name(),
		Version:       lp.plugin.Version(),
		Namespace:     lp.namespace,
		State:         lp.state,
		Status:        lp.state.Status(),
		Subscriptions: len(lp.receivers),
		Ticks:         lp.ticks.Load(),
		Handled:       lp.handled.Load(),
		Dropped:       lp.dropped.Load(),
		RegisteredAt:  lp.registeredAt,
		ActiveAt:      lp.activeAt,
		Crash:         lp.crash,
	}
}
