// Package plugin hosts server plugins and drives their lifecycle.
//
// A plugin is any value implementing Plugin. The Manager owns the plugin
// table and moves every plugin through the same phases:
//
//	Registered -> PreInitialized -> Initialized -> Active -> Inactive
//
// Any failing callback moves the plugin to Crashed instead. Crashing is
// local: the failure is recorded as a *LifecycleError, the plugin's
// subscriptions are closed, its context is revoked and the remaining plugins
// carry on.
//
// # Quick Start
//
//	bus := event.NewBus()
//	mgr, err := plugin.NewManager(bus, hub, cluster, plugin.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(context.Background())
//
//	if _, err := mgr.Register(ctx, heartbeat.New()); err != nil {
//	    return err
//	}
//	return mgr.Run(ctx, 50*time.Millisecond)
//
// # Phases
//
// Start runs each phase across all plugins, in registration order, before
// moving to the next one:
//
//  1. Event types listed by Provider.Events are registered.
//  2. PreInitialize is called. Plugins register the types they produce.
//  3. The ids returned by Subscriptions are subscribed.
//  4. Initialize is called. Plugins may subscribe to further types and emit.
//     Event delivery begins once Initialize returns.
//  5. The plugin becomes Active and is ticked by Tick.
//
// A plugin registered after Start is taken through the same phases at once.
//
// # Events
//
// Each subscription is fed to HandleEvent by its own pump goroutine, drawn
// from an ants pool. Callbacks into one plugin never overlap: Tick,
// HandleEvent and Stop are serialized per plugin, so plugin code needs no
// locking of its own. Events that arrive while a plugin is not receiving are
// counted as dropped.
//
// # Context
//
// A plugin reaches the server only through its *Context: registering,
// subscribing and emitting events, sending to connections and querying the
// cluster. A plugin may only emit event types it registered.
//
// # Reload
//
// Reload stops a plugin and registers a replacement under a new PluginID.
// The replacement adopts the event types the old instance owned, so other
// plugins' subscriptions keep working across the reload.
package plugin
