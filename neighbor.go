package hnsw

// NeighborRecord pairs a node reference with a cached distance, used both
// inside a Node's per-layer adjacency lists and as the candidate/result
// element type for the bounded best-first search in search_layer. The
// cached distance always equals Evaluate(owner.vector, other.vector) under
// the graph's configured metric (invariant from spec.md §3).
type NeighborRecord[T Float] struct {
	Node     *Node[T]
	Distance float32
}

// Less orders NeighborRecords by distance ascending, breaking ties by key
// so that search_layer's traversal is deterministic for a fixed graph
// state (spec.md §4.4 "Tie-breaking").
func (n NeighborRecord[T]) Less(other NeighborRecord[T]) bool {
	if n.Distance != other.Distance {
		return n.Distance < other.Distance
	}
	return n.Node.Key < other.Node.Key
}
