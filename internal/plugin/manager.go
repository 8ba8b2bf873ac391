package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/dispatch"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
)

// DefaultTickInterval is the tick period Run uses when given zero.
const DefaultTickInterval = 50 * time.Millisecond

// stopTimeout bounds the final StopAll issued by Run.
const stopTimeout = 10 * time.Second

// Manager owns the table of loaded plugins and drives each one through
// Registered, PreInitialized, Initialized and Active until it stops or
// crashes. A failing plugin is isolated; the others keep running.
type Manager struct {
	mu sync.RWMutex

	// Loaded plugins by id
	plugins map[event.PluginID]*LoadedPlugin

	// Registration order (for deterministic iteration)
	order []event.PluginID

	// Live plugins by name
	names map[string]event.PluginID

	// Crash history, oldest first
	crashes []*LifecycleError

	started bool
	baseCtx context.Context

	// Listeners (protected by mu)
	listeners []Listener

	// Collaborators
	bus     *event.Bus
	network network.Network
	cluster cluster.Cluster

	exec            *dispatch.Executor
	pool            *ants.Pool
	logger          *slog.Logger
	metrics         *managerMetrics
	tracer          trace.Tracer
	callbackTimeout time.Duration

	ticks    atomic.Uint64
	lastTick atomic.Int64
}

// Listener receives manager notifications. Listeners must not block and
// should not call back into the Manager. Panics in listeners are recovered.
type Listener func(ManagerEvent)

// ManagerEvent is a manager notification.
type ManagerEvent struct {
	Type     ManagerEventType
	Plugin   string
	ID       event.PluginID
	Previous event.PluginID
	Error    error
}

// ManagerEventType is the type of manager event.
type ManagerEventType int

const (
	// EventRegistered is emitted when a plugin enters the table.
	EventRegistered ManagerEventType = iota
	// EventActivated is emitted when a plugin starts ticking.
	EventActivated
	// EventStopped is emitted when a plugin stopped on request.
	EventStopped
	// EventCrashed is emitted when a plugin crashed.
	EventCrashed
	// EventReloaded is emitted when a plugin was replaced by a new instance.
	EventReloaded
	// EventRemoved is emitted when a plugin left the table.
	EventRemoved
)

// String returns a string representation of the event type.
func (t ManagerEventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventActivated:
		return "activated"
	case EventStopped:
		return "stopped"
	case EventCrashed:
		return "crashed"
	case EventReloaded:
		return "reloaded"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// NewManager creates a plugin manager on top of a bus. The network and
// cluster collaborators may be nil; plugins then get
// ErrCapabilityUnavailable from the corresponding context calls.
func NewManager(bus *event.Bus, net network.Network, cl cluster.Cluster, opts ...Option) (*Manager, error) {
	if bus == nil {
		return nil, errors.New("plugin manager: nil event bus")
	}

	config := defaultManagerConfig()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.logger.With("component", "plugin.manager")

	pool, err := ants.NewPool(config.poolSize,
		ants.WithNonblocking(true),
		ants.WithLogger(antsLogger{logger: logger}),
		ants.WithPanicHandler(func(v any) {
			logger.Error("event pump panicked", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("plugin manager: create pump pool: %w", err)
	}

	return &Manager{
		plugins:         make(map[event.PluginID]*LoadedPlugin),
		names:           make(map[string]event.PluginID),
		baseCtx:         context.Background(),
		bus:             bus,
		network:         net,
		cluster:         cl,
		exec:            dispatch.NewExecutor(dispatch.WithLogger(logger)),
		pool:            pool,
		logger:          logger,
		metrics:         newManagerMetrics(config.registerer),
		tracer:          config.tracerProvider.Tracer("github.com/dshills/regioncore/internal/plugin"),
		callbackTimeout: config.callbackTimeout,
	}, nil
}

// Bus returns the event bus plugins are wired to.
func (m *Manager) Bus() *event.Bus {
	return m.bus
}

// Register adds a plugin to the table. Before Start the plugin waits for
// Start; afterwards it is driven through every phase immediately.
func (m *Manager) Register(ctx context.Context, p Plugin) (event.PluginID, error) {
	if p == nil {
		return event.PluginID{}, ErrNilPlugin
	}
	name := p.Name()
	if err := ValidateName(name); err != nil {
		return event.PluginID{}, err
	}
	ns, err := namespaceOf(p)
	if err != nil {
		return event.PluginID{}, err
	}

	id := event.NewPluginID()
	lp := newLoadedPlugin(id, p, ns)
	lp.pctx = newContext(id, p, ns, m)
	lp.pctx.attach = func(rx *event.Receiver) error {
		return m.attach(lp, rx)
	}

	m.mu.Lock()
	if _, exists := m.names[name]; exists {
		m.mu.Unlock()
		return event.PluginID{}, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}
	if err := m.bus.AddPlugin(id, name); err != nil {
		m.mu.Unlock()
		return event.PluginID{}, fmt.Errorf("plugin %q: %w", name, err)
	}
	m.plugins[id] = lp
	m.order = append(m.order, id)
	m.names[name] = id
	started := m.started
	m.mu.Unlock()

	_ = m.move(lp, StateRegistered)
	m.logger.Info("plugin registered",
		"plugin", name,
		"plugin_id", id.String(),
		"version", p.Version().String(),
		"namespace", ns.String(),
	)
	m.emit(ManagerEvent{Type: EventRegistered, Plugin: name, ID: id})

	if started {
		m.bringUp(ctx, []*LoadedPlugin{lp})
	}
	return id, nil
}

// Start brings every registered plugin up, phase by phase across all plugins
// in registration order. Only the absence of plugins is fatal; individual
// failures crash the plugin concerned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(m.order) == 0 {
		m.mu.Unlock()
		return ErrNoPlugins
	}
	m.started = true
	m.baseCtx = context.WithoutCancel(ctx)
	list := m.ordered()
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "plugin.start",
		trace.WithAttributes(attribute.Int("plugins", len(list))))
	defer span.End()

	m.bringUp(ctx, list)

	m.logger.Info("plugins started",
		"active", m.CountActive(),
		"crashed", len(m.Crashes()),
	)
	return nil
}

// bringUp runs each phase for all plugins before moving to the next, so
// every subscription is in place before anyone initializes.
func (m *Manager) bringUp(ctx context.Context, list []*LoadedPlugin) {
	for _, lp := range list {
		m.registerProvided(ctx, lp)
	}
	for _, lp := range list {
		m.runPhase(ctx, lp, PhasePreInitialize, StateRegistered, StatePreInitialized, func(ctx context.Context) error {
			return lp.plugin.PreInitialize(ctx, lp.pctx)
		})
	}
	for _, lp := range list {
		m.subscribeDeclared(ctx, lp)
	}
	for _, lp := range list {
		ok := m.runPhase(ctx, lp, PhaseInitialize, StatePreInitialized, StateInitialized, func(ctx context.Context) error {
			return lp.plugin.Initialize(ctx, lp.pctx)
		})
		if ok {
			m.startPumps(lp)
		}
	}
	for _, lp := range list {
		m.activate(lp)
	}
}

func (m *Manager) registerProvided(ctx context.Context, lp *LoadedPlugin) {
	prov, ok := lp.plugin.(Provider)
	if !ok {
		return
	}

	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.State() != StateRegistered {
		return
	}
	res := m.exec.Execute(ctx, lp.Name()+"."+string(PhaseRegister), func(ctx context.Context) error {
		for _, name := range prov.Events() {
			if _, err := lp.pctx.Register(name); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Skipped {
		return
	}
	if err := res.Err(); err != nil {
		m.crash(lp, PhaseRegister, err)
	}
}

func (m *Manager) subscribeDeclared(ctx context.Context, lp *LoadedPlugin) {
	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.State() != StatePreInitialized {
		return
	}
	res := m.exec.Execute(ctx, lp.Name()+"."+string(PhaseSubscribe), func(ctx context.Context) error {
		for _, id := range lp.plugin.Subscriptions() {
			if err := lp.pctx.Subscribe(id); err != nil {
				return err
			}
		}
		return nil
	})
	if res.Skipped {
		return
	}
	if err := res.Err(); err != nil {
		m.crash(lp, PhaseSubscribe, err)
	}
}

// runPhase calls one lifecycle callback if the plugin is in from, then
// moves it to next. It reports whether the plugin reached next.
func (m *Manager) runPhase(ctx context.Context, lp *LoadedPlugin, phase Phase, from, next State, fn dispatch.Func) bool {
	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.State() != from {
		return false
	}

	ctx, span := m.tracer.Start(ctx, "plugin."+string(phase), trace.WithAttributes(
		attribute.String("plugin.name", lp.Name()),
		attribute.String("plugin.id", lp.id.String()),
	))
	defer span.End()

	res := m.exec.ExecuteWithTimeout(ctx, lp.Name()+"."+string(phase), fn, m.callbackTimeout)
	if res.Skipped {
		return false
	}
	m.metrics.phaseDuration.WithLabelValues(string(phase)).Observe(res.Duration.Seconds())

	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.crash(lp, phase, err)
		return false
	}
	return m.move(lp, next) == nil
}

func (m *Manager) activate(lp *LoadedPlugin) {
	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.State() != StateInitialized {
		return
	}
	if err := m.move(lp, StateActive); err != nil {
		return
	}
	m.logger.Info("plugin active", "plugin", lp.Name(), "plugin_id", lp.id.String())
	m.emit(ManagerEvent{Type: EventActivated, Plugin: lp.Name(), ID: lp.id})
}

// move transitions a plugin and keeps the state gauge current.
func (m *Manager) move(lp *LoadedPlugin, next State) error {
	prev, err := lp.transition(next)
	if err != nil {
		m.logger.Debug("state transition rejected", "plugin", lp.Name(), "error", err)
		return err
	}
	if prev != StateUnregistered {
		m.metrics.plugins.WithLabelValues(prev.String()).Dec()
	}
	m.metrics.plugins.WithLabelValues(next.String()).Inc()
	return nil
}

// crash moves a plugin to Crashed, once. It never takes callMu, so it is
// safe to call from inside a callback path.
func (m *Manager) crash(lp *LoadedPlugin, phase Phase, err error) {
	name := lp.Name()
	lerr := &LifecycleError{
		Plugin:  name,
		ID:      lp.id,
		Version: lp.Version(),
		Phase:   phase,
		Err:     err,
	}

	prev, ok := lp.markCrashed(lerr)
	if !ok {
		return
	}
	if prev != StateUnregistered {
		m.metrics.plugins.WithLabelValues(prev.String()).Dec()
	}
	m.metrics.plugins.WithLabelValues(StateCrashed.String()).Inc()

	m.mu.Lock()
	m.crashes = append(m.crashes, lerr)
	if m.names[name] == lp.id {
		delete(m.names, name)
	}
	m.mu.Unlock()

	lp.stopPumps()
	lp.pctx.revoke()
	m.bus.RemovePlugin(lp.id)

	if closer, ok := lp.plugin.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			m.logger.Warn("crashed plugin close failed", "plugin", name, "error", cerr)
		}
	}

	m.metrics.crashes.WithLabelValues(name, string(phase)).Inc()
	m.logger.Error("plugin crashed",
		"plugin", name,
		"plugin_id", lp.id.String(),
		"version", lp.Version().String(),
		"phase", string(phase),
		"error", err,
	)
	m.emit(ManagerEvent{Type: EventCrashed, Plugin: name, ID: lp.id, Error: lerr})
}

// attach records a new receiver and pumps it if the plugin already
// receives events.
func (m *Manager) attach(lp *LoadedPlugin, rx *event.Receiver) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	lp.receivers = append(lp.receivers, rx)
	if lp.pumping {
		return m.startPump(lp, rx)
	}
	return nil
}

func (m *Manager) startPumps(lp *LoadedPlugin) {
	lp.mu.Lock()
	if lp.pumping || !lp.state.ReceivesEvents() {
		lp.mu.Unlock()
		return
	}
	lp.pumping = true
	var err error
	for _, rx := range lp.receivers {
		if err = m.startPump(lp, rx); err != nil {
			break
		}
	}
	lp.mu.Unlock()

	if err != nil {
		m.crash(lp, PhaseInitialize, err)
	}
}

func (m *Manager) startPump(lp *LoadedPlugin, rx *event.Receiver) error {
	lp.pumps.Add(1)
	if err := m.pool.Submit(func() { m.pump(lp, rx) }); err != nil {
		lp.pumps.Done()
		return fmt.Errorf("start event pump for %s: %w", rx.EventID(), err)
	}
	return nil
}

// pump feeds one receiver into the plugin's HandleEvent until the plugin
// stops receiving.
func (m *Manager) pump(lp *LoadedPlugin, rx *event.Receiver) {
	defer lp.pumps.Done()

	for {
		ev, err := rx.Recv(lp.pumpCtx)
		if err != nil {
			var lagged *event.LaggedError
			if errors.As(err, &lagged) {
				m.drop(lp, "lagged", lagged.Skipped)
				continue
			}
			if n := rx.Drain(); n > 0 {
				m.drop(lp, "stopped", uint64(n))
			}
			return
		}
		m.deliver(lp, ev)
	}
}

func (m *Manager) deliver(lp *LoadedPlugin, ev event.Event) {
	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.pumpCtx.Err() != nil || !lp.State().ReceivesEvents() {
		m.drop(lp, "inactive", 1)
		return
	}

	name := lp.Name()
	res := m.exec.ExecuteWithTimeout(m.callbackCtx(), name+"."+string(PhaseHandleEvent), func(ctx context.Context) error {
		return lp.plugin.HandleEvent(ctx, lp.pctx, ev)
	}, m.callbackTimeout)

	if res.Skipped {
		m.drop(lp, "inactive", 1)
		return
	}
	if err := res.Err(); err != nil {
		m.crash(lp, PhaseHandleEvent, err)
		return
	}
	lp.handled.Add(1)
	m.metrics.handled.WithLabelValues(name).Inc()
}

func (m *Manager) drop(lp *LoadedPlugin, reason string, n uint64) {
	lp.dropped.Add(n)
	m.metrics.dropped.WithLabelValues(lp.Name(), reason).Add(float64(n))
	m.logger.Debug("events dropped", "plugin", lp.Name(), "reason", reason, "count", n)
}

func (m *Manager) callbackCtx() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseCtx
}

// Tick calls Tick on every active plugin, in registration order. A plugin
// that fails is crashed and skipped from then on. A done ctx ticks nothing
// and returns its error.
func (m *Manager) Tick(ctx context.Context, dt time.Duration) error {
	m.mu.RLock()
	started := m.started
	list := m.ordered()
	m.mu.RUnlock()

	if !started {
		return ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := m.tracer.Start(ctx, "plugin.tick")
	defer span.End()

	for _, lp := range list {
		m.tickOne(ctx, lp, dt)
	}

	m.ticks.Add(1)
	m.lastTick.Store(time.Now().UnixNano())
	m.metrics.ticks.Inc()
	return nil
}

func (m *Manager) tickOne(ctx context.Context, lp *LoadedPlugin, dt time.Duration) {
	lp.callMu.Lock()
	defer lp.callMu.Unlock()

	if lp.State() != StateActive {
		return
	}

	name := lp.Name()
	res := m.exec.ExecuteWithTimeout(ctx, name+"."+string(PhaseTick), func(ctx context.Context) error {
		return lp.plugin.Tick(ctx, lp.pctx, dt)
	}, m.callbackTimeout)

	if res.Skipped {
		return
	}
	lp.ticks.Add(1)
	m.metrics.tickDuration.WithLabelValues(name).Observe(res.Duration.Seconds())

	if err := res.Err(); err != nil {
		m.crash(lp, PhaseTick, err)
	}
}

// Run starts the manager if needed and ticks every interval until ctx is
// cancelled, then stops all plugins.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	if !m.Started() {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			return m.StopAll(stopCtx)
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := m.Tick(ctx, dt); err != nil {
				if errors.Is(err, ErrNotStarted) {
					// Stopped from elsewhere.
					return nil
				}
				if ctx.Err() != nil {
					// Cancelled; the next pass stops the plugins.
					continue
				}
				return err
			}
		}
	}
}

// Stop stops one plugin. Tick scheduling and event pumps are cancelled,
// an in-flight callback is allowed to finish, then the plugin's Stop is
// called and it becomes Inactive. Stopping a crashed or stopped plugin is a
// no-op.
func (m *Manager) Stop(ctx context.Context, id event.PluginID) error {
	lp, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}
	return m.stopPlugin(ctx, lp)
}

func (m *Manager) stopPlugin(ctx context.Context, lp *LoadedPlugin) error {
	lp.stopPumps()

	lp.callMu.Lock()
	state := lp.State()
	var stopErr error
	switch {
	case state.IsTerminal():
	case state == StateRegistered:
		_ = m.move(lp, StateInactive)
	default:
		if ctx.Err() != nil {
			// Stop still runs once the caller's deadline has passed.
			ctx = context.WithoutCancel(ctx)
		}
		ctx, span := m.tracer.Start(ctx, "plugin."+string(PhaseStop), trace.WithAttributes(
			attribute.String("plugin.name", lp.Name()),
			attribute.String("plugin.id", lp.id.String()),
		))
		res := m.exec.ExecuteWithTimeout(ctx, lp.Name()+"."+string(PhaseStop), func(ctx context.Context) error {
			return lp.plugin.Stop(ctx, lp.pctx)
		}, m.callbackTimeout)
		if err := res.Err(); err != nil && !res.Skipped {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.crash(lp, PhaseStop, err)
			stopErr = lp.Crash()
		} else {
			_ = m.move(lp, StateInactive)
		}
		span.End()
	}
	lp.callMu.Unlock()

	lp.pctx.revoke()
	m.bus.RemovePlugin(lp.id)
	lp.pumps.Wait()

	if state.IsTerminal() || stopErr != nil {
		return stopErr
	}

	name := lp.Name()
	m.mu.Lock()
	if m.names[name] == lp.id {
		delete(m.names, name)
	}
	m.mu.Unlock()

	m.logger.Info("plugin stopped", "plugin", name, "plugin_id", lp.id.String())
	m.emit(ManagerEvent{Type: EventStopped, Plugin: name, ID: lp.id})
	return nil
}

// StopAll stops every plugin in reverse registration order.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	m.started = false
	list := m.ordered()
	m.mu.Unlock()

	var stopErrors []error
	for i := len(list) - 1; i >= 0; i-- {
		if err := m.stopPlugin(ctx, list[i]); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}

	if len(stopErrors) > 0 {
		return fmt.Errorf("failed to stop %d plugins: %w", len(stopErrors), errors.Join(stopErrors...))
	}
	return nil
}

// Close stops every plugin and releases the pump pool.
func (m *Manager) Close(ctx context.Context) error {
	err := m.StopAll(ctx)

	timeout := stopTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if relErr := m.pool.ReleaseTimeout(timeout); relErr != nil && !errors.Is(relErr, ants.ErrPoolClosed) {
		err = errors.Join(err, fmt.Errorf("release pump pool: %w", relErr))
	}
	return err
}

// Remove stops a plugin and drops it from the table.
func (m *Manager) Remove(ctx context.Context, id event.PluginID) error {
	lp, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}
	if err := m.stopPlugin(ctx, lp); err != nil {
		m.logger.Warn("plugin failed to stop cleanly", "plugin", lp.Name(), "error", err)
	}
	m.remove(lp)
	m.emit(ManagerEvent{Type: EventRemoved, Plugin: lp.Name(), ID: id})
	return nil
}

func (m *Manager) remove(lp *LoadedPlugin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.plugins, lp.id)
	for i, id := range m.order {
		if id == lp.id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.names[lp.Name()] == lp.id {
		delete(m.names, lp.Name())
	}
	m.metrics.plugins.WithLabelValues(lp.State().String()).Dec()
}

// Reload replaces a plugin with a new instance of the same name. The old
// entry is stopped and removed; the replacement gets a new PluginID, adopts
// the event types the old instance owned, and is brought up at once if the
// manager is running.
func (m *Manager) Reload(ctx context.Context, id event.PluginID, replacement Plugin) (event.PluginID, error) {
	if replacement == nil {
		return event.PluginID{}, ErrNilPlugin
	}
	lp, ok := m.Get(id)
	if !ok {
		return event.PluginID{}, fmt.Errorf("plugin %s: %w", id, ErrPluginNotFound)
	}
	if replacement.Name() != lp.Name() {
		return event.PluginID{}, fmt.Errorf("%w: reload of %q with %q", ErrInvalidPlugin, lp.Name(), replacement.Name())
	}

	if err := m.stopPlugin(ctx, lp); err != nil {
		m.logger.Warn("plugin failed to stop cleanly before reload", "plugin", lp.Name(), "error", err)
	}
	m.remove(lp)

	newID, err := m.Register(ctx, replacement)
	if err != nil {
		return event.PluginID{}, fmt.Errorf("reload %q: %w", lp.Name(), err)
	}

	m.logger.Info("plugin reloaded",
		"plugin", lp.Name(),
		"previous_id", id.String(),
		"plugin_id", newID.String(),
		"version", replacement.Version().String(),
	)
	m.emit(ManagerEvent{Type: EventReloaded, Plugin: lp.Name(), ID: newID, Previous: id})
	return newID, nil
}

// Get returns a plugin by id.
func (m *Manager) Get(id event.PluginID) (*LoadedPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lp, ok := m.plugins[id]
	return lp, ok
}

// Lookup returns the live plugin with the given name, or the most recently
// registered entry with that name if none is live.
func (m *Manager) Lookup(name string) (*LoadedPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.names[name]; ok {
		return m.plugins[id], true
	}
	for i := len(m.order) - 1; i >= 0; i-- {
		if lp := m.plugins[m.order[i]]; lp.Name() == name {
			return lp, true
		}
	}
	return nil, false
}

// List returns a report for every plugin in registration order.
func (m *Manager) List() []Report {
	m.mu.RLock()
	list := m.ordered()
	m.mu.RUnlock()

	reports := make([]Report, len(list))
	for i, lp := range list {
		reports[i] = lp.Report()
	}
	return reports
}

// Crashes returns every recorded crash, oldest first.
func (m *Manager) Crashes() []*LifecycleError {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*LifecycleError, len(m.crashes))
	copy(out, m.crashes)
	return out
}

// Count returns the number of plugins in the table.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	m.mu.RLock()
	list := m.ordered()
	m.mu.RUnlock()

	count := 0
	for _, lp := range list {
		if lp.State() == StateActive {
			count++
		}
	}
	return count
}

// Started reports whether Start has run and StopAll has not.
func (m *Manager) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Ticks returns the number of completed ticks.
func (m *Manager) Ticks() uint64 {
	return m.ticks.Load()
}

// LastTick returns when the last tick completed, or the zero time.
func (m *Manager) LastTick() time.Time {
	ns := m.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Subscribe adds a listener and returns a function that removes it.
func (m *Manager) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	index := len(m.listeners) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Set to nil instead of removing to keep other indexes valid
		if index < len(m.listeners) {
			m.listeners[index] = nil
		}
	}
}

// emit calls every listener outside the lock, recovering panics.
func (m *Manager) emit(ev ManagerEvent) {
	m.mu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		if listener == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("manager listener panicked", "event", ev.Type.String(), "panic", r)
				}
			}()
			listener(ev)
		}()
	}
}

// ordered returns the plugins in registration order.
// Must be called with mu held.
func (m *Manager) ordered() []*LoadedPlugin {
	list := make([]*LoadedPlugin, 0, len(m.order))
	for _, id := range m.order {
		if lp, ok := m.plugins[id]; ok {
			list = append(list, lp)
		}
	}
	return list
}
