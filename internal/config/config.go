// Package config loads the server configuration.
//
// Values are layered in a fixed order: built-in defaults, then a TOML or YAML
// file chosen by extension, then REGIONCORE_* environment variables. The
// result is validated before use.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dshills/regioncore/internal/cluster"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "REGIONCORE_"

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server" envPrefix:"SERVER_"`
	Region  RegionConfig  `toml:"region" yaml:"region" envPrefix:"REGION_"`
	Cluster ClusterConfig `toml:"cluster" yaml:"cluster" envPrefix:"CLUSTER_"`
	Events  EventsConfig  `toml:"events" yaml:"events" envPrefix:"EVENTS_"`
	Plugins PluginsConfig `toml:"plugins" yaml:"plugins" envPrefix:"PLUGINS_"`
	Log     LogConfig     `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Admin   AdminConfig   `toml:"admin" yaml:"admin" envPrefix:"ADMIN_"`
	Tracing TracingConfig `toml:"tracing" yaml:"tracing" envPrefix:"TRACING_"`
}

// ServerConfig holds the node identity and tick settings.
type ServerConfig struct {
	NodeID          string   `toml:"node_id" yaml:"node_id" env:"NODE_ID"`
	Address         string   `toml:"address" yaml:"address" env:"ADDRESS"`
	TickRate        int      `toml:"tick_rate" yaml:"tick_rate" env:"TICK_RATE"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TickInterval returns the tick period derived from TickRate.
func (s ServerConfig) TickInterval() time.Duration {
	if s.TickRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.TickRate)
}

// RegionConfig is the region this node serves. It is fixed for the life of
// the process; reloads do not move a node.
type RegionConfig struct {
	X int32 `toml:"x" yaml:"x" env:"X"`
	Y int32 `toml:"y" yaml:"y" env:"Y"`
	Z int32 `toml:"z" yaml:"z" env:"Z"`
}

// Region converts to the cluster type.
func (r RegionConfig) Region() cluster.Region {
	return cluster.Region{X: r.X, Y: r.Y, Z: r.Z}
}

// ClusterConfig lists known peers and the load sampling period.
type ClusterConfig struct {
	Peers          []PeerConfig `toml:"peers" yaml:"peers"`
	SampleInterval Duration     `toml:"sample_interval" yaml:"sample_interval" env:"SAMPLE_INTERVAL"`
}

// PeerConfig is a statically known node.
type PeerConfig struct {
	ID      string       `toml:"id" yaml:"id"`
	Address string       `toml:"address" yaml:"address"`
	Region  RegionConfig `toml:"region" yaml:"region"`
}

// Node converts to the cluster type.
func (p PeerConfig) Node() cluster.Node {
	return cluster.Node{ID: p.ID, Address: p.Address, Region: p.Region.Region()}
}

// EventsConfig tunes the event bus.
type EventsConfig struct {
	Capacity int `toml:"capacity" yaml:"capacity" env:"CAPACITY"`
}

// PluginsConfig selects and tunes plugins.
type PluginsConfig struct {
	// Builtin names the compiled-in plugins to load.
	Builtin []string `toml:"builtin" yaml:"builtin" env:"BUILTIN" envSeparator:","`

	// Dir is scanned for *.lua plugin scripts. Empty disables scripts.
	Dir string `toml:"dir" yaml:"dir" env:"DIR"`

	PumpPoolSize    int      `toml:"pump_pool_size" yaml:"pump_pool_size" env:"PUMP_POOL_SIZE"`
	CallbackTimeout Duration `toml:"callback_timeout" yaml:"callback_timeout" env:"CALLBACK_TIMEOUT"`
	ScriptTimeout   Duration `toml:"script_timeout" yaml:"script_timeout" env:"SCRIPT_TIMEOUT"`

	// HeartbeatEvery is the heartbeat plugin's period in ticks.
	HeartbeatEvery int `toml:"heartbeat_every" yaml:"heartbeat_every" env:"HEARTBEAT_EVERY"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// AdminConfig controls the metrics and health endpoint.
type AdminConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Address string `toml:"address" yaml:"address" env:"ADDRESS"`
}

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `toml:"endpoint" yaml:"endpoint" env:"ENDPOINT"`
	Insecure    bool    `toml:"insecure" yaml:"insecure" env:"INSECURE"`
	ServiceName string  `toml:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `toml:"sample_ratio" yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			NodeID:          "node-1",
			Address:         "127.0.0.1:7000",
			TickRate:        20,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Cluster: ClusterConfig{
			SampleInterval: Duration(5 * time.Second),
		},
		Events: EventsConfig{
			Capacity: 1024,
		},
		Plugins: PluginsConfig{
			Builtin:        []string{"heartbeat", "echo"},
			ScriptTimeout:  Duration(time.Second),
			HeartbeatEvery: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Admin: AdminConfig{
			Enabled: true,
			Address: "127.0.0.1:9090",
		},
		Tracing: TracingConfig{
			ServiceName: "regioncore",
			SampleRatio: 1,
		},
	}
}

// Load builds a configuration from defaults, the file at path (if not empty)
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, &ParseError{Path: "env", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.NodeID == "" {
		errs = append(errs, fieldError("server.node_id", "must not be empty"))
	}
	if c.Server.TickRate <= 0 || c.Server.TickRate > 1000 {
		errs = append(errs, fieldError("server.tick_rate", "must be between 1 and 1000, got %d", c.Server.TickRate))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fieldError("server.shutdown_timeout", "must not be negative"))
	}
	if c.Cluster.SampleInterval < 0 {
		errs = append(errs, fieldError("cluster.sample_interval", "must not be negative"))
	}
	for i, p := range c.Cluster.Peers {
		if p.ID == "" {
			errs = append(errs, fieldError(fmt.Sprintf("cluster.peers[%d].id", i), "must not be empty"))
		}
		if p.ID == c.Server.NodeID {
			errs = append(errs, fieldError(fmt.Sprintf("cluster.peers[%d].id", i), "duplicates server.node_id"))
		}
	}
	if c.Events.Capacity <= 0 {
		errs = append(errs, fieldError("events.capacity", "must be positive, got %d", c.Events.Capacity))
	}
	if c.Plugins.PumpPoolSize < 0 {
		errs = append(errs, fieldError("plugins.pump_pool_size", "must not be negative"))
	}
	if c.Plugins.HeartbeatEvery < 0 {
		errs = append(errs, fieldError("plugins.heartbeat_every", "must not be negative"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fieldError("log.level", "unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fieldError("log.format", "must be text or json, got %q", c.Log.Format))
	}
	if c.Admin.Enabled && c.Admin.Address == "" {
		errs = append(errs, fieldError("admin.address", "required when admin is enabled"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fieldError("tracing.sample_ratio", "must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// Duration is a time.Duration written as a Go duration string ("250ms").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
