// Package cluster defines the region and node queries the plugin core needs
// from cluster discovery, plus a static in-memory table that satisfies them.
package cluster

import (
	"context"
	"fmt"
	"time"
)

// Region identifies a spatial shard. A server process is bound to one region
// at startup and keeps it for its lifetime.
type Region struct {
	X int32 `json:"x" toml:"x" yaml:"x"`
	Y int32 `json:"y" toml:"y" yaml:"y"`
	Z int32 `json:"z" toml:"z" yaml:"z"`
}

// String returns "(x,y,z)".
func (r Region) String() string {
	return fmt.Sprintf("(%d,%d,%d)", r.X, r.Y, r.Z)
}

// Distance returns the Chebyshev distance between two regions: the number of
// region steps, diagonals included, separating them.
func (r Region) Distance(o Region) int64 {
	return max(absDiff(r.X, o.X), absDiff(r.Y, o.Y), absDiff(r.Z, o.Z))
}

func absDiff(a, b int32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}

// Node is one server process in the cluster.
type Node struct {
	ID       string    `json:"id"`
	Region   Region    `json:"region"`
	Address  string    `json:"address"`
	LastSeen time.Time `json:"last_seen"`
	Load     float32   `json:"load"`
}

// Cluster is the query capability handed to plugins through their context.
// It is read-only apart from UpdateLoad.
type Cluster interface {
	// LocalNode returns the node this process runs as.
	LocalNode(ctx context.Context) (Node, error)

	// NodeForRegion returns the node serving a region. The bool is false
	// when no node serves it.
	NodeForRegion(ctx context.Context, region Region) (Node, bool, error)

	// NeighboringRegions returns the nodes whose region lies within distance
	// of region, excluding region itself, ordered by distance.
	NeighboringRegions(ctx context.Context, region Region, distance int32) ([]Node, error)

	// UpdateLoad publishes the local node's load.
	UpdateLoad(ctx context.Context, load float32) error
}
