package server

import (
	"encoding/json"
	"time"

	"github.com/dshills/regioncore/internal/codec"
	"github.com/dshills/regioncore/internal/event"
	"github.com/dshills/regioncore/internal/network"
)

// Namespace is the namespace of the events the server itself produces.
const Namespace event.Namespace = "server"

// Events owned by the server.
var (
	// MessageEvent carries one decoded client message as an Inbound.
	MessageEvent = event.MustEventID(Namespace, "message")

	// ConnectedEvent is emitted with a Connection when a session opens.
	ConnectedEvent = event.MustEventID(Namespace, "connected")

	// DisconnectedEvent is emitted with a Connection when a session closes.
	DisconnectedEvent = event.MustEventID(Namespace, "disconnected")
)

// Inbound is a client message routed to plugins. Payload is JSON whatever
// the wire format was; Format is the format the client spoke, so replies
// can use the same one.
type Inbound struct {
	Conn    network.ConnectionID `json:"conn"`
	Player  network.PlayerID     `json:"player"`
	Event   string               `json:"event"`
	Format  codec.Format         `json:"format"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// Connection describes a session that opened or closed.
type Connection struct {
	Conn   network.ConnectionID `json:"conn"`
	Player network.PlayerID     `json:"player"`
	Remote string               `json:"remote"`
	At     time.Time            `json:"at"`
}
