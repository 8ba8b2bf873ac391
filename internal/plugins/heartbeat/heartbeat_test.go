package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// ants starts a default pool at init that lives for the whole process.
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).purgeStaleWorkers"),
		goleak.IgnoreAnyFunction("github.com/panjf2000/ants/v2.(*poolCommon).ticktock"),
	)
}

type listener struct {
	plugin.Base

	mu    sync.Mutex
	beats []Beat
}

func (l *listener) Name() string                   { return "listener" }
func (l *listener) Version() plugin.Version        { return plugin.MustParseVersion("0.0.1") }
func (l *listener) Subscriptions() []event.EventID { return []event.EventID{BeatEvent} }

func (l *listener) HandleEvent(_ context.Context, _ *plugin.Context, ev event.Event) error {
	beat, ok := event.PayloadOf[Beat](ev)
	if ok {
		l.mu.Lock()
		l.beats = append(l.beats, beat)
		l.mu.Unlock()
	}
	return nil
}

func (l *listener) received() []Beat {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Beat(nil), l.beats...)
}

func startManager(t *testing.T, cl cluster.Cluster, plugins ...plugin.Plugin) *plugin.Manager {
	t.Helper()
	mgr, err := plugin.NewManager(event.NewBus(), nil, cl)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mgr.Close(ctx)
	})

	ctx := context.Background()
	for _, p := range plugins {
		_, err := mgr.Register(ctx, p)
		require.NoError(t, err)
	}
	require.NoError(t, mgr.Start(ctx))
	return mgr
}

func tick(t *testing.T, mgr *plugin.Manager, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, mgr.Tick(context.Background(), 50*time.Millisecond))
	}
}

func TestHeartbeatBeatsEveryN(t *testing.T) {
	local := cluster.Node{ID: "eu-1", Region: cluster.Region{X: 1, Y: 2}, Load: 0.25}
	table, err := cluster.NewStatic(local)
	require.NoError(t, err)

	hb := New(2)
	l := &listener{}
	mgr := startManager(t, table, hb, l)

	tick(t, mgr, 5)

	require.Eventually(t, func() bool { return len(l.received()) == 2 }, 2*time.Second, 5*time.Millisecond)
	beats := l.received()
	assert.Equal(t, uint64(2), beats[0].Tick)
	assert.Equal(t, uint64(4), beats[1].Tick)
	assert.Equal(t, "eu-1", beats[1].Node)
	assert.Equal(t, local.Region.String(), beats[1].Region)
	assert.InDelta(t, 0.25, beats[1].Load, 1e-6)
	assert.Equal(t, uint64(5), hb.Ticks())
}

func TestHeartbeatWithoutCluster(t *testing.T) {
	l := &listener{}
	mgr := startManager(t, nil, New(1), l)

	tick(t, mgr, 1)

	require.Eventually(t, func() bool { return len(l.received()) == 1 }, 2*time.Second, 5*time.Millisecond)
	beat := l.received()[0]
	assert.Empty(t, beat.Node)
	assert.Empty(t, beat.Region)

	rep, ok := mgr.Lookup(Name)
	require.True(t, ok)
	assert.Equal(t, plugin.StateActive, rep.State())
}

func TestHeartbeatDisabled(t *testing.T) {
	l := &listener{}
	hb := New(0)
	mgr := startManager(t, nil, hb, l)

	tick(t, mgr, 3)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, l.received())
	assert.Equal(t, uint64(3), hb.Ticks())
	assert.Equal(t, []string{"beat"}, hb.Events())
}
