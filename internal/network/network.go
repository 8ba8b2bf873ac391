// Package network defines what the plugin core needs from the wire transport
// and ships an in-memory Hub that satisfies it.
package network

import (
	"context"
	"strconv"

	"github.com/dshills/regioncore/internal/codec"
)

// ConnectionID identifies a network session. It is owned by the transport;
// the core looks it up but never mutates it.
type ConnectionID uint64

// String returns the decimal form of the id.
func (c ConnectionID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// PlayerID identifies the player behind a session.
type PlayerID string

// Stats are the transport counters.
type Stats struct {
	Sent          uint64
	Received      uint64
	SentBytes     uint64
	ReceivedBytes uint64
}

// Network is the send capability handed to plugins through their context.
type Network interface {
	// SendToConnection queues an already encoded payload for one session.
	SendToConnection(ctx context.Context, conn ConnectionID, data []byte, format codec.Format) error

	// Stats returns the transport counters.
	Stats() Stats
}
