package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dshills/regioncore/internal/cluster"
	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
)

// Context is the only handle a plugin gets on the server. It wraps the event
// bus, the network send capability and the cluster queries, all scoped to the
// plugin's identity.
//
// Contexts are built by the Manager. Once the plugin stops or crashes the
// context is revoked and every method returns ErrContextRevoked.
type Context struct {
	id        event.PluginID
	name      string
	version   Version
	namespace event.Namespace

	bus     *event.Bus
	network network.Network
	cluster cluster.Cluster
	logger  *slog.Logger

	// attach hands new receivers to the manager's event pump.
	attach func(*event.Receiver) error

	revoked atomic.Bool
}

func newContext(id event.PluginID, p Plugin, ns event.Namespace, m *Manager) *Context {
	return &Context{
		id:        id,
		name:      p.Name(),
		version:   p.Version(),
		namespace: ns,
		bus:       m.bus,
		network:   m.network,
		cluster:   m.cluster,
		logger: m.logger.With(
			"plugin", p.Name(),
			"plugin_id", id.String(),
			"version", p.Version().String(),
		),
	}
}

func (c *Context) revoke() {
	c.revoked.Store(true)
}

func (c *Context) check() error {
	if c.revoked.Load() {
		return fmt.Errorf("plugin %q: %w", c.name, ErrContextRevoked)
	}
	return nil
}

// ID returns the plugin instance id.
func (c *Context) ID() event.PluginID { return c.id }

// Name returns the plugin name.
func (c *Context) Name() string { return c.name }

// Version returns the plugin version.
func (c *Context) Version() Version { return c.version }

// Namespace returns the namespace the plugin registers events in.
func (c *Context) Namespace() event.Namespace { return c.namespace }

// Logger returns a logger tagged with the plugin identity.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Revoked reports whether the context has been revoked.
func (c *Context) Revoked() bool { return c.revoked.Load() }

// EventID returns the id of an event name in the plugin's namespace.
func (c *Context) EventID(name string) (event.EventID, error) {
	return event.NewEventID(c.namespace, name)
}

// Register declares that the plugin produces events called name.
func (c *Context) Register(name string) (event.EventID, error) {
	if err := c.check(); err != nil {
		return event.EventID{}, err
	}
	id, err := c.EventID(name)
	if err != nil {
		return event.EventID{}, err
	}
	if _, err := c.bus.Register(c.id, id); err != nil {
		return event.EventID{}, err
	}
	c.logger.Debug("event registered", "event", id.String())
	return id, nil
}

// Subscribe starts delivering events of id to the plugin's HandleEvent.
// The type must already be registered.
func (c *Context) Subscribe(id event.EventID) error {
	if err := c.check(); err != nil {
		return err
	}
	rx, err := c.bus.SubscribeID(c.id, id)
	if err != nil {
		return err
	}
	if c.attach != nil {
		if err := c.attach(rx); err != nil {
			rx.Close()
			return err
		}
	}
	c.logger.Debug("subscribed", "event", id.String())
	return nil
}

// Emit publishes payload as an event of id. The plugin must own id.
func (c *Context) Emit(id event.EventID, payload any) error {
	return c.EmitEvent(event.New(id, c.id, payload))
}

// Emit publishes a typed payload through pc. Subscribers can read it back
// with event.PayloadOf[T].
func Emit[T any](pc *Context, id event.EventID, payload T) error {
	return pc.EmitEvent(event.New(id, pc.id, payload))
}

// EmitEvent publishes an already built event. Its owner must be this plugin
// and the plugin must own its type.
func (c *Context) EmitEvent(ev event.Event) error {
	if err := c.check(); err != nil {
		return err
	}
	if ev == nil {
		return event.ErrNilEvent
	}
	if err := c.checkOwner(ev); err != nil {
		return err
	}
	return c.bus.Emit(ev)
}

func (c *Context) checkOwner(ev event.Event) error {
	typeID := ev.TypeID()
	owner, ok := c.bus.Owner(typeID)
	if !ok {
		if _, known := c.bus.Lookup(typeID); !known {
			return fmt.Errorf("emit %s: %w", typeID, event.ErrUnknownEventType)
		}
		return fmt.Errorf("emit %s: %w", typeID, ErrNotOwner)
	}
	if owner != c.id || ev.Owner() != c.id {
		id, _ := c.bus.Lookup(typeID)
		return fmt.Errorf("emit %s: %w", id, ErrNotOwner)
	}
	return nil
}

// SendToConnection encodes payload in format and queues it for a connection.
// An encoding failure returns a *DeliveryError and nothing is sent; a
// transport failure returns the collaborator's *network.TransportError.
func (c *Context) SendToConnection(ctx context.Context, conn network.ConnectionID, payload any, format codec.Format) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.network == nil {
		return fmt.Errorf("network: %w", ErrCapabilityUnavailable)
	}

	data, err := codec.Marshal(payload, format)
	if err != nil {
		derr := &DeliveryError{Plugin: c.name, Conn: conn, Format: format, Err: err}
		c.logger.Warn("send skipped", "conn", conn.String(), "format", format.String(), "error", err)
		return derr
	}
	return c.network.SendToConnection(ctx, conn, data, format)
}

// NetworkStats returns the transport counters.
func (c *Context) NetworkStats() (network.Stats, error) {
	if err := c.check(); err != nil {
		return network.Stats{}, err
	}
	if c.network == nil {
		return network.Stats{}, fmt.Errorf("network: %w", ErrCapabilityUnavailable)
	}
	return c.network.Stats(), nil
}

// LocalNode returns the node this server runs as.
func (c *Context) LocalNode(ctx context.Context) (cluster.Node, error) {
	if err := c.checkCluster(); err != nil {
		return cluster.Node{}, err
	}
	return c.cluster.LocalNode(ctx)
}

// NodeForRegion returns the node serving region.
func (c *Context) NodeForRegion(ctx context.Context, region cluster.Region) (cluster.Node, bool, error) {
	if err := c.checkCluster(); err != nil {
		return cluster.Node{}, false, err
	}
	return c.cluster.NodeForRegion(ctx, region)
}

// NeighboringRegions returns the nodes within distance of region.
func (c *Context) NeighboringRegions(ctx context.Context, region cluster.Region, distance int32) ([]cluster.Node, error) {
	if err := c.checkCluster(); err != nil {
		return nil, err
	}
	return c.cluster.NeighboringRegions(ctx, region, distance)
}

// UpdateLoad publishes the local node's load.
func (c *Context) UpdateLoad(ctx context.Context, load float32) error {
	if err := c.checkCluster(); err != nil {
		return err
	}
	return c.cluster.UpdateLoad(ctx, load)
}

func (c *Context) checkCluster() error {
	if err := c.check(); err != nil {
		return err
	}
	if c.cluster == nil {
		return fmt.Errorf("cluster: %w", ErrCapabilityUnavailable)
	}
	return nil
}
