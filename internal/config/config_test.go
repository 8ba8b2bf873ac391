package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/regioncore/internal/cluster"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50*time.Millisecond, cfg.Server.TickInterval())
	assert.Equal(t, 1024, cfg.Events.Capacity)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "regioncore.toml", `
[server]
node_id = "eu-1"
tick_rate = 10
shutdown_timeout = "3s"

[region]
x = 2
y = -1

[[cluster.peers]]
id = "eu-2"
address = "10.0.0.2:7000"
region = { x = 3, y = -1, z = 0 }

[events]
capacity = 64

[plugins]
builtin = ["heartbeat"]
callback_timeout = "250ms"

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-1", cfg.Server.NodeID)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.TickInterval())
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Std())
	assert.Equal(t, cluster.Region{X: 2, Y: -1}, cfg.Region.Region())
	require.Len(t, cfg.Cluster.Peers, 1)
	assert.Equal(t, cluster.Node{ID: "eu-2", Address: "10.0.0.2:7000", Region: cluster.Region{X: 3, Y: -1}}, cfg.Cluster.Peers[0].Node())
	assert.Equal(t, 64, cfg.Events.Capacity)
	assert.Equal(t, []string{"heartbeat"}, cfg.Plugins.Builtin)
	assert.Equal(t, 250*time.Millisecond, cfg.Plugins.CallbackTimeout.Std())

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Admin, cfg.Admin)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "regioncore.yaml", `
server:
  node_id: us-1
  tick_rate: 30
cluster:
  sample_interval: 1s
  peers:
    - id: us-2
      address: 10.1.0.2:7000
      region: {x: 1}
tracing:
  enabled: true
  endpoint: collector:4318
  sample_ratio: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "us-1", cfg.Server.NodeID)
	assert.Equal(t, 30, cfg.Server.TickRate)
	assert.Equal(t, time.Second, cfg.Cluster.SampleInterval.Std())
	require.Len(t, cfg.Cluster.Peers, 1)
	assert.Equal(t, int32(1), cfg.Cluster.Peers[0].Region.X)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
	assert.InDelta(t, 0.5, cfg.Tracing.SampleRatio, 1e-9)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "regioncore.toml", `
[server]
node_id = "file"
tick_rate = 10
`)
	t.Setenv("REGIONCORE_SERVER_NODE_ID", "env")
	t.Setenv("REGIONCORE_EVENTS_CAPACITY", "16")
	t.Setenv("REGIONCORE_PLUGINS_BUILTIN", "echo,heartbeat")
	t.Setenv("REGIONCORE_PLUGINS_CALLBACK_TIMEOUT", "2s")
	t.Setenv("REGIONCORE_REGION_Z", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env", cfg.Server.NodeID)
	assert.Equal(t, 10, cfg.Server.TickRate)
	assert.Equal(t, 16, cfg.Events.Capacity)
	assert.Equal(t, []string{"echo", "heartbeat"}, cfg.Plugins.Builtin)
	assert.Equal(t, 2*time.Second, cfg.Plugins.CallbackTimeout.Std())
	assert.Equal(t, int32(4), cfg.Region.Z)
}

func TestLoadEnvParseError(t *testing.T) {
	t.Setenv("REGIONCORE_EVENTS_CAPACITY", "lots")

	_, err := Load("")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "env", perr.Path)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "regioncore.ini", "x=1"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed toml", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "[server\nnode_id=")
		_, err := Load(path)
		var perr *ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, path, perr.Path)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "bad.yaml", "server:\n  shutdown_timeout: soon\n"))
		var perr *ParseError
		assert.ErrorAs(t, err, &perr)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty node id", func(c *Config) { c.Server.NodeID = "" }, "server.node_id"},
		{"zero tick rate", func(c *Config) { c.Server.TickRate = 0 }, "server.tick_rate"},
		{"zero capacity", func(c *Config) { c.Events.Capacity = 0 }, "events.capacity"},
		{"negative pool", func(c *Config) { c.Plugins.PumpPoolSize = -1 }, "plugins.pump_pool_size"},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"admin without address", func(c *Config) { c.Admin.Address = "" }, "admin.address"},
		{"sample ratio", func(c *Config) { c.Tracing.SampleRatio = 2 }, "tracing.sample_ratio"},
		{"peer duplicates node", func(c *Config) {
			c.Cluster.Peers = []PeerConfig{{ID: c.Server.NodeID}}
		}, "cluster.peers[0].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Server.NodeID = ""
	cfg.Events.Capacity = -1

	err := cfg.Validate()
	require.Error(t, err)

	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	assert.Len(t, joined.Unwrap(), 2)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(b))

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}
