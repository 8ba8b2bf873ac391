// Package event provides the event registry and event bus that plugins use to
// talk to each other.
//
// # Identity
//
// An event kind is addressed externally by an EventID, written
// "namespace::name". Each plugin gets the namespace "plugin.<name>" unless it
// picks its own, so two plugins choosing the same short name do not collide.
// Internally the bus routes by TypeID, the XXH64 hash of the rendered EventID.
// The hash is unseeded, so ids agree across processes and builds.
//
// # Ownership
//
// Exactly one live plugin owns an event type. Register fails with
// ErrAlreadyRegistered if another plugin already owns the type id, and
// Subscribe fails with ErrUnknownEventType until someone has registered it.
// When an owner is removed its types are orphaned rather than deleted, so
// existing subscribers survive a reload of the owner.
//
// # Delivery
//
// Every type has a broadcast stream with a copy-on-write list of receivers.
// Emit reads the list without locking and pushes the event into each
// receiver's bounded buffer:
//
//	emitter ──Emit──▶ stream[TypeID] ──▶ Receiver (plugin B)
//	                                 └─▶ Receiver (plugin C)
//
// A full buffer drops its oldest event instead of blocking the emitter. The
// receiver reports the gap once through a *LaggedError and then carries on.
// Receivers added after an emission never see it.
//
// # Usage
//
//	bus := event.NewBus(event.WithCapacity(256))
//	a, b := event.NewPluginID(), event.NewPluginID()
//	_ = bus.AddPlugin(a, "A")
//	_ = bus.AddPlugin(b, "B")
//
//	greet := event.MustEventID(event.PluginNamespace("A"), "greet")
//	_, _ = bus.Register(a, greet)
//	rx, _ := bus.SubscribeID(b, greet)
//
//	_ = bus.Emit(event.New(greet, a, Greeting{Msg: "hi"}))
//	ev, _ := rx.Recv(ctx)
//	g, _ := event.PayloadOf[Greeting](ev)
package event
