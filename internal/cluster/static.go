package cluster

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// Static is a fixed cluster table. The local node is bound at construction
// and its region never changes; peers are added and removed explicitly.
type Static struct {
	mu    sync.RWMutex
	local Node
	nodes map[Region]Node
	now   func() time.Time
}

// NewStatic creates a table whose local node is local.
func NewStatic(local Node, peers ...Node) (*Static, error) {
	s := &Static{
		nodes: make(map[Region]Node),
		now:   time.Now,
	}
	if local.LastSeen.IsZero() {
		local.LastSeen = s.now()
	}
	s.local = local
	s.nodes[local.Region] = local

	for _, peer := range peers {
		if err := s.AddNode(peer); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddNode adds or refreshes a peer. A region can only be served by one node.
func (s *Static) AddNode(n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nodes[n.Region]; ok && existing.ID != n.ID {
		region := n.Region
		return &Error{Op: "add node", Region: &region, Err: ErrRegionTaken}
	}
	if n.ID == s.local.ID {
		// The local entry is owned by this process.
		return nil
	}
	if n.LastSeen.IsZero() {
		n.LastSeen = s.now()
	}
	s.nodes[n.Region] = n
	return nil
}

// RemoveNode drops the peer serving region.
func (s *Static) RemoveNode(region Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[region]
	if !ok || n.ID == s.local.ID {
		return &Error{Op: "remove node", Region: &region, Err: ErrUnknownNode}
	}
	delete(s.nodes, region)
	return nil
}

// Nodes returns all nodes, local included, ordered by id.
func (s *Static) Nodes() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LocalNode implements Cluster.
func (s *Static) LocalNode(ctx context.Context) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, &Error{Op: "local node", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local, nil
}

// NodeForRegion implements Cluster.
func (s *Static) NodeForRegion(ctx context.Context, region Region) (Node, bool, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, false, &Error{Op: "node for region", Region: &region, Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[region]
	return n, ok, nil
}

// NeighboringRegions implements Cluster.
func (s *Static) NeighboringRegions(ctx context.Context, region Region, distance int32) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "neighboring regions", Region: &region, Err: err}
	}
	if distance < 0 {
		return nil, &Error{Op: "neighboring regions", Region: &region, Err: ErrNegativeDistance}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Node
	for r, n := range s.nodes {
		d := region.Distance(r)
		if d == 0 || d > int64(distance) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := region.Distance(out[i].Region), region.Distance(out[j].Region)
		if di != dj {
			return di < dj
		}
		ri, rj := out[i].Region, out[j].Region
		if ri.X != rj.X {
			return ri.X < rj.X
		}
		if ri.Y != rj.Y {
			return ri.Y < rj.Y
		}
		return ri.Z < rj.Z
	})
	return out, nil
}

// UpdateLoad implements Cluster.
func (s *Static) UpdateLoad(ctx context.Context, load float32) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "update load", Err: err}
	}
	if load < 0 || math.IsNaN(float64(load)) || math.IsInf(float64(load), 0) {
		return &Error{Op: "update load", Err: ErrInvalidLoad}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.local.Load = load
	s.local.LastSeen = s.now()
	s.nodes[s.local.Region] = s.local
	return nil
}
