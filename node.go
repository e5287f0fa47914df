package hnsw

import "sync"

// Node is one indexed vector: its external key, the vector payload, the
// top layer on which it appears, and a layer->neighbor-list map. TopLayer
// is set at construction and never changes; Vector is owned by the node
// and never mutated after creation, so both may be read without holding
// the node's lock.
//
// Node embeds sync.RWMutex directly, mirroring the original source's
// Arc<RwLock<Node>>: mutation of neighbors always happens under the
// node's write lock. The exported AddConnection and RemoveConnection take
// that lock themselves; graph.go's connectEdge instead acquires two
// nodes' locks in canonical key order before calling the unexported,
// non-locking mutation helpers below (spec.md §5 "Locking discipline").
//
// Grounded on original_source/src/hnsw_graph/node.rs's
// Node{cid, vector, layer, connections}.
type Node[T Float] struct {
	sync.RWMutex

	Key      string
	Vector   []T
	topLayer int

	neighbors map[int][]NeighborRecord[T]
}

func newNode[T Float](key string, vector []T, topLayer int) *Node[T] {
	return &Node[T]{
		Key:       key,
		Vector:    vector,
		topLayer:  topLayer,
		neighbors: make(map[int][]NeighborRecord[T]),
	}
}

// TopLayer returns the highest layer this node participates in.
func (n *Node[T]) TopLayer() int {
	return n.topLayer
}

// NeighborsAt returns a copy of the node's neighbor list at layer, and
// whether the layer exists for this node.
func (n *Node[T]) NeighborsAt(layer int) ([]NeighborRecord[T], bool) {
	n.RLock()
	defer n.RUnlock()
	return n.neighborsAtLocked(layer)
}

// neighborsAtLocked requires the caller to hold at least a read lock.
func (n *Node[T]) neighborsAtLocked(layer int) ([]NeighborRecord[T], bool) {
	list, ok := n.neighbors[layer]
	if !ok {
		return nil, false
	}
	out := make([]NeighborRecord[T], len(list))
	copy(out, list)
	return out, true
}

// AddConnection adds neighbor to the node's layer-ℓ adjacency list,
// locking internally. See addConnectionLocked for the capacity policy.
func (n *Node[T]) AddConnection(layer int, neighbor NeighborRecord[T], cap int, rejectOnFull bool) error {
	n.Lock()
	defer n.Unlock()
	_, _, err := n.addConnectionLocked(layer, neighbor, cap, rejectOnFull)
	return err
}

// addConnectionLocked requires the caller to already hold the node's
// write lock (graph.go's connectEdge acquires both endpoints' locks in
// canonical key order before calling this on each side).
//
// If the list has fewer than cap entries, neighbor is appended. If the
// list is full, the behavior depends on rejectOnFull: when true, the
// call fails with ErrCapacityReached, matching the original source's
// node.rs::add_connection; when false (the default recommended by
// spec.md §4.2), the current farthest neighbor is evicted in favor of
// neighbor if neighbor is strictly closer, and the call always succeeds
// — a full list with no strictly-closer candidate simply leaves the list
// unchanged. When an existing neighbor is evicted, its key is returned
// so the caller (connectEdge) can also remove the now-stale reciprocal
// edge from the evicted node's own list — addConnectionLocked only ever
// touches n's list.
func (n *Node[T]) addConnectionLocked(layer int, neighbor NeighborRecord[T], cap int, rejectOnFull bool) (evictedKey string, evicted bool, err error) {
	list := n.neighbors[layer]
	for _, existing := range list {
		if existing.Node.Key == neighbor.Node.Key {
			return "", false, nil
		}
	}

	if len(list) < cap {
		n.neighbors[layer] = append(list, neighbor)
		return "", false, nil
	}

	if rejectOnFull {
		return "", false, ErrCapacityReached
	}

	worst := 0
	for i, existing := range list {
		if existing.Distance > list[worst].Distance {
			worst = i
		}
	}
	if list[worst].Distance <= neighbor.Distance {
		return "", false, nil
	}

	evictedKey = list[worst].Node.Key
	list[worst] = neighbor
	return evictedKey, true, nil
}

// wouldAcceptLocked reports, without mutating state, whether a candidate
// at the given distance would be kept in layer's list: either the list
// has room, or the candidate is strictly closer than the current
// farthest entry. Requires the caller to hold at least a read lock.
//
// connectEdge checks both endpoints with this before committing a new
// edge, so the edge is installed on both sides or neither — never only
// one — keeping the bidirectional invariant of spec.md §3 exact outside
// the brief concurrent-insert window §5 permits, rather than leaving it
// to chance whenever the two endpoints' existing neighbor sets disagree
// about which one is the weaker candidate.
func (n *Node[T]) wouldAcceptLocked(layer int, distance float32, cap int) bool {
	list := n.neighbors[layer]
	if len(list) < cap {
		return true
	}
	worst := list[0].Distance
	for _, existing := range list[1:] {
		if existing.Distance > worst {
			worst = existing.Distance
		}
	}
	return worst > distance
}

// RemoveConnection removes the neighbor with the given key from the
// node's layer-ℓ adjacency list, locking internally.
func (n *Node[T]) RemoveConnection(layer int, neighborKey string) error {
	n.Lock()
	defer n.Unlock()
	return n.removeConnectionLocked(layer, neighborKey)
}

// removeConnectionLocked requires the caller to already hold the node's
// write lock.
func (n *Node[T]) removeConnectionLocked(layer int, neighborKey string) error {
	list, ok := n.neighbors[layer]
	if !ok {
		return ErrNotFound
	}

	for i, existing := range list {
		if existing.Node.Key == neighborKey {
			n.neighbors[layer] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// DistanceTo applies metric to compute the distance from this node's
// vector to query. The node's vector is immutable after creation, so no
// lock is required.
func (n *Node[T]) DistanceTo(query []T, metric Metric[T]) float32 {
	return metric.Evaluate(n.Vector, query)
}
