package event

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// TypeID is the internal dispatch key of an event kind.
// It is derived from the event name with XXH64, which is unseeded, so the same
// name always produces the same id across processes and builds.
type TypeID uint64

// TypeIDOf hashes an event name into a TypeID.
func TypeIDOf(name string) TypeID {
	return TypeID(xxhash.Sum64String(name))
}

// String returns the id as a fixed-width hex string.
func (t TypeID) String() string {
	return fmt.Sprintf("0x%016x", uint64(t))
}

// PluginID identifies a loaded plugin instance for its whole lifetime.
// A reloaded plugin gets a fresh PluginID.
type PluginID uuid.UUID

// NewPluginID returns a random 128-bit plugin id.
func NewPluginID() PluginID {
	return PluginID(uuid.New())
}

// ParsePluginID parses the canonical string form of a PluginID.
func ParsePluginID(s string) (PluginID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return PluginID{}, err
	}
	return PluginID(u), nil
}

// String returns the canonical uuid form.
func (p PluginID) String() string {
	return uuid.UUID(p).String()
}

// IsZero reports whether the id is unset.
func (p PluginID) IsZero() bool {
	return p == PluginID{}
}

// Stats contains event bus statistics.
type Stats struct {
	// Emitted is the number of events accepted by Emit.
	Emitted uint64

	// Rejected is the number of Emit calls that failed.
	Rejected uint64

	// Deliveries is the number of event copies handed to receivers.
	Deliveries uint64

	// Lagged is the number of events overwritten in full receivers.
	Lagged uint64

	// EventTypes is the number of registered event types.
	EventTypes int

	// Receivers is the current number of open receivers.
	Receivers int
}
