package lua

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/goleak"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
	"github.com/dshills/regioncore/internal/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// ants starts a default pool at init that lives for the whole process.
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	)
}

const producerScript = `
local ticks = 0
return {
	name = "producer",
	version = "1.2.0",
	events = { "ping" },
	tick = function(ctx, dt)
		ticks = ticks + 1
		ctx.emit("ping", { n = ticks, from = ctx.name })
	end,
}
`

const consumerScript = `
received = {}
return {
	name = "consumer",
	version = "0.1.0",
	subscriptions = { "plugin.producer::ping" },
	handle_event = function(ctx, ev)
		received[#received + 1] = ev.payload.n
		last_id = ev.id
	end,
}
`

func mustLoad(t *testing.T, code string, opts ...Option) *Script {
	t.Helper()
	s, err := Load(context.Background(), code, opts...)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type harness struct {
	mgr *plugin.Manager
	hub *network.Hub
}

func newHarness(t *testing.T, cl cluster.Cluster) harness {
	t.Helper()
	hub := network.NewHub()
	mgr, err := plugin.NewManager(event.NewBus(), hub, cl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})
	return harness{mgr: mgr, hub: hub}
}

func (h harness) register(t *testing.T, p plugin.Plugin) event.PluginID {
	t.Helper()
	id, err := h.mgr.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("Register(%s): %v", p.Name(), err)
	}
	return id
}

func (h harness) start(t *testing.T) {
	t.Helper()
	if err := h.mgr.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (h harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.mgr.Tick(context.Background(), 50*time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func globalLen(s *Script, name string) int {
	if tbl, ok := s.State().GetGlobal(name).(*glua.LTable); ok {
		return tbl.Len()
	}
	return 0
}

func TestLoad_Descriptor(t *testing.T) {
	s := mustLoad(t, consumerScript)

	if s.Name() != "consumer" {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.Version() != (plugin.Version{Major: 0, Minor: 1, Hotfix: 0}) {
		t.Errorf("Version() = %v", s.Version())
	}
	if s.Namespace() != "plugin.consumer" {
		t.Errorf("Namespace() = %q", s.Namespace())
	}
	subs := s.Subscriptions()
	if len(subs) != 1 || subs[0].String() != "plugin.producer::ping" {
		t.Errorf("Subscriptions() = %v", subs)
	}
	if !s.HasCallback(CallbackHandleEvent) || s.HasCallback(CallbackTick) {
		t.Error("callback table mismatch")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"not a table":      `return 42`,
		"syntax":           `return {`,
		"missing name":     `return { version = "1.0.0" }`,
		"bad name":         `return { name = "a.b", version = "1.0.0" }`,
		"missing version":  `return { name = "x" }`,
		"bad version":      `return { name = "x", version = "one" }`,
		"bad events":       `return { name = "x", version = "1.0.0", events = "ping" }`,
		"bad subscription": `return { name = "x", version = "1.0.0", subscriptions = { "ping" } }`,
		"bad callback":     `return { name = "x", version = "1.0.0", tick = 5 }`,
		"runtime error":    `error("boom")`,
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(context.Background(), code); !errors.Is(err, ErrInvalidScript) {
				t.Errorf("Load() error = %v, want ErrInvalidScript", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "producer.lua")
	if err := os.WriteFile(path, []byte(producerScript), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	defer s.Close()

	if s.Name() != "producer" || len(s.Events()) != 1 {
		t.Errorf("loaded %q with events %v", s.Name(), s.Events())
	}

	if _, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("LoadFile() of a missing file should fail")
	}
}

func TestScript_EmitAndHandle(t *testing.T) {
	h := newHarness(t, nil)
	producer := mustLoad(t, producerScript)
	consumer := mustLoad(t, consumerScript)

	h.register(t, producer)
	h.register(t, consumer)
	h.start(t)
	h.tick(t, 3)

	waitFor(t, "three pings", func() bool { return globalLen(consumer, "received") == 3 })

	if got := consumer.State().GetGlobal("last_id"); got != glua.LString("plugin.producer::ping") {
		t.Errorf("last_id = %v", got)
	}
	if crashes := h.mgr.Crashes(); len(crashes) != 0 {
		t.Errorf("unexpected crashes: %v", crashes)
	}
}

func TestScript_ErrorCrashes(t *testing.T) {
	h := newHarness(t, nil)
	s := mustLoad(t, `
		return {
			name = "faulty",
			version = "1.0.0",
			tick = function(ctx, dt) error("bad tick") end,
		}
	`)
	id := h.register(t, s)
	h.start(t)
	h.tick(t, 2)

	lp, _ := h.mgr.Get(id)
	crash := lp.Crash()
	if crash == nil || crash.Phase != plugin.PhaseTick {
		t.Fatalf("crash = %v, want tick crash", crash)
	}
	var serr *ScriptError
	if !errors.As(crash, &serr) || serr.Callback != CallbackTick {
		t.Errorf("crash cause = %v, want *ScriptError in tick", crash.Err)
	}
	if len(h.mgr.Crashes()) != 1 {
		t.Errorf("Crashes() = %d, want 1", len(h.mgr.Crashes()))
	}
	if !s.State().IsClosed() {
		t.Error("crashed script state should be closed")
	}
}

func TestScript_EmitForeignTypeFails(t *testing.T) {
	h := newHarness(t, nil)
	producer := mustLoad(t, producerScript)
	thief := mustLoad(t, `
		return {
			name = "thief",
			version = "1.0.0",
			initialize = function(ctx)
				local ok, err = pcall(ctx.emit, "plugin.producer::ping", {})
				caught = not ok and tostring(err) or "no error"
			end,
		}
	`)
	h.register(t, producer)
	id := h.register(t, thief)
	h.start(t)

	lp, _ := h.mgr.Get(id)
	if lp.State() != plugin.StateActive {
		t.Fatalf("thief state = %s, want active (error was caught)", lp.State())
	}
	caught := thief.State().GetGlobal("caught").String()
	if caught == "no error" || caught == "nil" {
		t.Errorf("caught = %q, want an ownership error", caught)
	}
}

func TestScript_Send(t *testing.T) {
	h := newHarness(t, nil)
	session := h.hub.Connect("player-1", "127.0.0.1:4000")
	defer h.hub.Disconnect(session.ID())

	s := mustLoad(t, `
		return {
			name = "greeter",
			version = "1.0.0",
			tick = function(ctx, dt)
				ctx:send(target, { text = "welcome" }, "json")
			end,
		}
	`)
	s.State().SetGlobal("target", glua.LNumber(session.ID()))

	h.register(t, s)
	h.start(t)
	h.tick(t, 1)

	select {
	case msg := <-session.Outbox():
		if msg.Format != codec.JSON {
			t.Errorf("Format = %s, want json", msg.Format)
		}
		var got map[string]string
		if err := json.Unmarshal(msg.Data, &got); err != nil || got["text"] != "welcome" {
			t.Errorf("Data = %s (%v)", msg.Data, err)
		}
	case <-time.After(time.Second):
		t.Fatal("no message queued")
	}
}

func TestScript_SendUnknownConnectionCrashes(t *testing.T) {
	h := newHarness(t, nil)
	s := mustLoad(t, `
		return {
			name = "greeter",
			version = "1.0.0",
			tick = function(ctx, dt) ctx.send(999, "hi") end,
		}
	`)
	id := h.register(t, s)
	h.start(t)
	h.tick(t, 1)

	lp, _ := h.mgr.Get(id)
	if lp.State() != plugin.StateCrashed {
		t.Errorf("state = %s, want crashed", lp.State())
	}
}

func TestScript_Cluster(t *testing.T) {
	local := cluster.Node{ID: "node-a", Region: cluster.Region{X: 0, Y: 0, Z: 0}, Address: "10.0.0.1:7000"}
	peer := cluster.Node{ID: "node-b", Region: cluster.Region{X: 1, Y: 0, Z: 0}, Address: "10.0.0.2:7000"}
	static, err := cluster.NewStatic(local, peer)
	if err != nil {
		t.Fatal(err)
	}

	h := newHarness(t, static)
	s := mustLoad(t, `
		return {
			name = "mapper",
			version = "1.0.0",
			initialize = function(ctx)
				local node = ctx.local_node()
				local_id = node.id
				local near = ctx.neighbors(node.region.x, node.region.y, node.region.z, 1)
				neighbor_id = near[1].id
				missing = ctx.node_for(5, 5, 5) == nil
				ctx.update_load(0.5)
			end,
		}
	`)
	h.register(t, s)
	h.start(t)

	if got := s.State().GetGlobal("local_id"); got != glua.LString("node-a") {
		t.Errorf("local_id = %v", got)
	}
	if got := s.State().GetGlobal("neighbor_id"); got != glua.LString("node-b") {
		t.Errorf("neighbor_id = %v", got)
	}
	if got := s.State().GetGlobal("missing"); got != glua.LTrue {
		t.Errorf("missing = %v", got)
	}
	node, _ := static.LocalNode(context.Background())
	if node.Load != 0.5 {
		t.Errorf("Load = %v, want 0.5", node.Load)
	}
}

func TestScript_NoClusterCapability(t *testing.T) {
	h := newHarness(t, nil)
	s := mustLoad(t, `
		return {
			name = "mapper",
			version = "1.0.0",
			initialize = function(ctx) ctx.local_node() end,
		}
	`)
	id := h.register(t, s)
	h.start(t)

	lp, _ := h.mgr.Get(id)
	if crash := lp.Crash(); crash == nil || crash.Phase != plugin.PhaseInitialize {
		t.Errorf("crash = %v, want initialize crash", crash)
	}
}

func TestScript_RuntimeRegisterAndSubscribe(t *testing.T) {
	h := newHarness(t, nil)
	a := mustLoad(t, `
		return {
			name = "a",
			version = "1.0.0",
			pre_initialize = function(ctx) registered = ctx.register("news") end,
			tick = function(ctx, dt) ctx.emit(registered, "extra") end,
		}
	`)
	b := mustLoad(t, `
		got = {}
		return {
			name = "b",
			version = "1.0.0",
			initialize = function(ctx) ctx:subscribe("plugin.a::news") end,
			handle_event = function(ctx, ev) got[#got + 1] = ev.payload end,
		}
	`)
	h.register(t, a)
	h.register(t, b)
	h.start(t)
	h.tick(t, 2)

	if got := a.State().GetGlobal("registered"); got != glua.LString("plugin.a::news") {
		t.Errorf("registered = %v", got)
	}
	waitFor(t, "b to receive", func() bool { return globalLen(b, "got") == 2 })
}

func TestScript_StopClosesState(t *testing.T) {
	h := newHarness(t, nil)
	s := mustLoad(t, `
		return {
			name = "closer",
			version = "1.0.0",
			stop = function(ctx) ctx.log("info", "bye", { reason = "shutdown" }) end,
		}
	`)
	id := h.register(t, s)
	h.start(t)

	if err := h.mgr.Stop(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if !s.State().IsClosed() {
		t.Error("state should be closed after stop")
	}
}
