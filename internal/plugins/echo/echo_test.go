package echo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/config"
	"github.com/dshills/regioncore/internal/network"
	"github.com/dshills/regioncore/internal/server"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Admin.Enabled = false

	srv, err := server.New(cfg)
	require.NoError(t, err)

	script, err := New(context.Background())
	require.NoError(t, err)
	_, err = srv.AddPlugin(context.Background(), script)
	require.NoError(t, err)

	require.NoError(t, srv.Manager().Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Manager().Close(ctx)
	})
	return srv
}

func nextMessage(t *testing.T, sess *network.Session) network.Message {
	t.Helper()
	select {
	case msg := <-sess.Outbox():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return network.Message{}
	}
}

func TestEchoDescriptor(t *testing.T) {
	script, err := New(context.Background())
	require.NoError(t, err)
	defer script.Close()

	assert.Equal(t, Name, script.Name())
	assert.Equal(t, "1.0.0", script.Version().String())
	require.Len(t, script.Subscriptions(), 1)
	assert.Equal(t, server.MessageEvent, script.Subscriptions()[0])
	assert.Contains(t, Source(), "handle_event")
}

func TestEchoJSON(t *testing.T) {
	srv := startServer(t)
	sess := srv.Connect("p1", "127.0.0.1:5000")

	err := srv.HandleInbound(sess.ID(), []byte(`{"event":"echo","payload":{"text":"hi","n":2}}`), codec.JSON)
	require.NoError(t, err)

	msg := nextMessage(t, sess)
	assert.Equal(t, codec.JSON, msg.Format)
	assert.JSONEq(t, `{"event":"echo","payload":{"text":"hi","n":2}}`, string(msg.Data))
}

func TestEchoBinary(t *testing.T) {
	srv := startServer(t)
	sess := srv.Connect("p1", "127.0.0.1:5000")

	data, err := codec.Marshal(map[string]any{"event": "echo", "payload": map[string]any{"text": "hi"}}, codec.Binary)
	require.NoError(t, err)
	require.NoError(t, srv.HandleInbound(sess.ID(), data, codec.Binary))

	msg := nextMessage(t, sess)
	assert.Equal(t, codec.Binary, msg.Format)

	var reply struct {
		Event   string         `cbor:"event"`
		Payload map[string]any `cbor:"payload"`
	}
	require.NoError(t, codec.Unmarshal(msg.Data, codec.Binary, &reply))
	assert.Equal(t, "echo", reply.Event)
	assert.Equal(t, "hi", reply.Payload["text"])
}

func TestEchoIgnoresOtherEvents(t *testing.T) {
	srv := startServer(t)
	sess := srv.Connect("p1", "127.0.0.1:5000")

	require.NoError(t, srv.HandleInbound(sess.ID(), []byte(`{"event":"chat","payload":"x"}`), codec.JSON))
	require.NoError(t, srv.HandleInbound(sess.ID(), []byte(`{"event":"echo","payload":"second"}`), codec.JSON))

	// Events are delivered in order, so the first reply answers the second message.
	msg := nextMessage(t, sess)
	assert.JSONEq(t, `{"event":"echo","payload":"second"}`, string(msg.Data))

	rep, ok := srv.Manager().Lookup(Name)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return rep.Report().Handled == 2 }, 2*time.Second, 5*time.Millisecond)
}
