// Package heartbeat is a built-in plugin that emits a periodic beat carrying
// the tick count and the local node's load.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/plugin"
)

// Name is the plugin name.
const Name = "heartbeat"

// BeatEvent is the event the plugin emits.
var BeatEvent = event.MustEventID(event.PluginNamespace(Name), "beat")

var version = plugin.MustParseVersion("1.0.0")

// Beat is the BeatEvent payload. Node fields are empty when the server runs
// without a cluster.
type Beat struct {
	Tick   uint64        `json:"tick"`
	Uptime time.Duration `json:"uptime"`
	Node   string        `json:"node,omitempty"`
	Region string        `json:"region,omitempty"`
	Load   float32       `json:"load"`
}

// Plugin emits BeatEvent every N ticks.
type Plugin struct {
	plugin.Base

	every   uint64
	ticks   uint64
	started time.Time
}

// New returns a heartbeat that beats every n ticks. n <= 0 disables beats;
// the plugin still ticks and owns the event.
func New(n int) *Plugin {
	p := &Plugin{}
	if n > 0 {
		p.every = uint64(n)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return Name }

// Version implements plugin.Plugin.
func (p *Plugin) Version() plugin.Version { return version }

// Events implements plugin.Provider.
func (p *Plugin) Events() []string { return []string{BeatEvent.Name} }

// Initialize implements plugin.Plugin.
func (p *Plugin) Initialize(ctx context.Context, pc *plugin.Context) error {
	p.started = time.Now()
	pc.Logger().Debug("heartbeat initialized", "every", p.every)
	return nil
}

// Tick implements plugin.Plugin.
func (p *Plugin) Tick(ctx context.Context, pc *plugin.Context, dt time.Duration) error {
	p.ticks++
	if p.every == 0 || p.ticks%p.every != 0 {
		return nil
	}

	beat := Beat{Tick: p.ticks, Uptime: time.Since(p.started)}
	node, err := pc.LocalNode(ctx)
	switch {
	case err == nil:
		beat.Node = node.ID
		beat.Region = node.Region.String()
		beat.Load = node.Load
	case errors.Is(err, plugin.ErrCapabilityUnavailable):
	default:
		return err
	}
	return pc.Emit(BeatEvent, beat)
}

// Ticks returns how many ticks the plugin has seen.
func (p *Plugin) Ticks() uint64 { return p.ticks }
