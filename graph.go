package hnsw

import (
	"sort"
	"sync"

	"github.com/vecdb/hnsw/heap"
	"golang.org/x/exp/maps"
)

// graph is the layered proximity graph: the node set plus a per-layer
// entry-point table, exposing insert/search/lookup/remove primitives over
// the multi-layer adjacency (spec.md §2 component 4). The Index façade in
// hnsw.go builds Insert/Search on top of these primitives; graph itself
// has no notion of parameters like M or ef — those are passed in by the
// caller at each call site.
//
// Grounded on original_source/src/hnsw_graph/graph.rs's HNSWGraph (nodes,
// entry_points maps, search_layer_neighbors, add_edge, remove_node), with
// the Go concurrency idiom (bounded heap traversal, canonical-order
// locking) drawn from coder-hnsw/graph.go's Graph[K].
type graph[T Float] struct {
	mu          sync.RWMutex
	nodes       map[string]*Node[T]
	entryPoints map[int]*Node[T]
	currentTop  int // -1 when empty
}

func newGraph[T Float]() *graph[T] {
	return &graph[T]{
		nodes:       make(map[string]*Node[T]),
		entryPoints: make(map[int]*Node[T]),
		currentTop:  -1,
	}
}

func (g *graph[T]) nodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *graph[T]) lookup(key string) (*Node[T], bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[key]
	return n, ok
}

// topLayer returns the highest top_layer among all inserted nodes, or -1
// if the graph is empty.
func (g *graph[T]) topLayer() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.currentTop
}

func (g *graph[T]) entryPointAt(layer int) (*Node[T], bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.entryPoints[layer]
	return n, ok
}

// register adds n to the node map and promotes it to entry point for any
// newly created layers (spec.md §4.5 step 7). Caller must not hold n's
// lock or any other node's lock.
func (g *graph[T]) register(n *Node[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[n.Key] = n

	if g.currentTop < 0 {
		for l := 0; l <= n.topLayer; l++ {
			g.entryPoints[l] = n
		}
		g.currentTop = n.topLayer
		return
	}

	if n.topLayer > g.currentTop {
		for l := g.currentTop + 1; l <= n.topLayer; l++ {
			g.entryPoints[l] = n
		}
		g.currentTop = n.topLayer
	}
}

// connectEdge installs a bidirectional edge between a and b at layer,
// under the canonical (lexicographic-by-key) two-node lock order spec.md
// §5 and §9 require in place of the original source's caller-order
// locking, which could deadlock when two concurrent inserts need the same
// pair of nodes in opposite order.
//
// Under the default farthest-replacement policy (rejectOnFull == false),
// the edge is committed to both endpoints or neither: each side is
// checked with wouldAcceptLocked before anything is mutated, so a and b
// either both gain the edge or both stay as they were — this repository's
// fix for the asymmetric-edge defect spec.md §4.5 documents as "a known
// bug preserved in the source" for the reject-on-full policy, extended
// here to the farthest-replacement policy as well. Making room for the
// new edge can still evict a third node's existing entry (see
// addConnectionLocked); that eviction's stale reciprocal is cleaned up
// below, once a and b's locks are released, by taking the evicted node's
// own lock in isolation — never nested under a or b's (spec.md §5
// "never hold more than two node locks simultaneously").
//
// Under rejectOnFull, the original source's asymmetric behavior is kept
// unchanged: a's edge to b may be installed while b's list is full and
// rejects the back-edge.
func (g *graph[T]) connectEdge(a, b *Node[T], layer, m int, metric Metric[T], rejectOnFull bool) {
	if a.Key == b.Key {
		return
	}

	first, second := a, b
	if b.Key < a.Key {
		first, second = b, a
	}
	first.Lock()
	second.Lock()

	distAB := metric.Evaluate(a.Vector, b.Vector)
	distBA := metric.Evaluate(b.Vector, a.Vector)

	var evictedFromA, evictedFromB string
	var haveEvictedA, haveEvictedB bool

	switch {
	case rejectOnFull:
		_, _, _ = a.addConnectionLocked(layer, NeighborRecord[T]{Node: b, Distance: distAB}, m, true)
		_, _, _ = b.addConnectionLocked(layer, NeighborRecord[T]{Node: a, Distance: distBA}, m, true)
	case a.wouldAcceptLocked(layer, distAB, m) && b.wouldAcceptLocked(layer, distBA, m):
		evictedFromA, haveEvictedA, _ = a.addConnectionLocked(layer, NeighborRecord[T]{Node: b, Distance: distAB}, m, false)
		evictedFromB, haveEvictedB, _ = b.addConnectionLocked(layer, NeighborRecord[T]{Node: a, Distance: distBA}, m, false)
	}

	second.Unlock()
	first.Unlock()

	if haveEvictedA {
		if victim, ok := g.lookup(evictedFromA); ok {
			_ = victim.RemoveConnection(layer, a.Key)
		}
	}
	if haveEvictedB {
		if victim, ok := g.lookup(evictedFromB); ok {
			_ = victim.RemoveConnection(layer, b.Key)
		}
	}
}

// searchLayer is the bounded best-first traversal of spec.md §4.4,
// restricted to one layer. It returns up to ef results ascending by
// distance. A discovered candidate is admitted into the result set the
// moment it's found to improve it — the "optional" variant spec.md §4.4
// explicitly permits as an alternative to re-inserting the popped
// candidate every iteration, which would double count the seed entry
// point — grounded in coder-hnsw/graph.go's layerNode.search.
func (g *graph[T]) searchLayer(query []T, entry *Node[T], layer, ef int, metric Metric[T]) []NeighborRecord[T] {
	seed := NeighborRecord[T]{Node: entry, Distance: entry.DistanceTo(query, metric)}

	visited := map[string]bool{entry.Key: true}

	var candidates heap.Heap[NeighborRecord[T]]
	candidates.Push(seed)

	var results heap.Heap[NeighborRecord[T]]
	results.Push(seed)

	for candidates.Len() > 0 {
		c := candidates.Pop()

		if results.Len() >= ef && c.Distance > results.Max().Distance {
			break
		}

		neighbors, ok := c.Node.NeighborsAt(layer)
		if !ok {
			continue
		}

		for _, nb := range neighbors {
			if visited[nb.Node.Key] {
				continue
			}
			visited[nb.Node.Key] = true

			cand := NeighborRecord[T]{Node: nb.Node, Distance: nb.Node.DistanceTo(query, metric)}
			candidates.Push(cand)

			if results.Len() < ef {
				results.Push(cand)
			} else if cand.Distance < results.Max().Distance {
				results.PopLast()
				results.Push(cand)
			}
		}
	}

	return results.Slice()
}

// greedyDescend repeatedly moves to the single closest neighbor of entry
// at layer, relative to query, via search_layer with ef=1. This
// implements spec.md §4.5 step 4's single-step greedy move, which the
// spec explicitly permits as an alternative to a hand-rolled loop.
func (g *graph[T]) greedyDescend(query []T, entry *Node[T], layer int, metric Metric[T]) *Node[T] {
	result := g.searchLayer(query, entry, layer, 1, metric)
	if len(result) == 0 {
		return entry
	}
	return result[0].Node
}

// remove implements the remove-primitive of spec.md §4.7: it deletes key
// from the graph, removes the reciprocal edge in every referenced
// neighbor, and — going beyond the original source's acknowledged defect
// — promotes a surviving neighbor to replace any entry point the removed
// node held, so no layer is left without an entry point while nodes with
// top_layer >= that layer still exist.
//
// remove is not exposed through Index; it exists for completeness at the
// graph-primitive level only, per spec.md §1's non-goals.
func (g *graph[T]) remove(key string) error {
	g.mu.Lock()
	n, ok := g.nodes[key]
	if !ok {
		g.mu.Unlock()
		return ErrNotFound
	}
	delete(g.nodes, key)
	g.mu.Unlock()

	n.Lock()
	byLayer := make(map[int][]NeighborRecord[T], len(n.neighbors))
	for layer, list := range n.neighbors {
		cp := make([]NeighborRecord[T], len(list))
		copy(cp, list)
		byLayer[layer] = cp
	}
	n.Unlock()

	for layer, list := range byLayer {
		for _, nb := range list {
			_ = nb.Node.RemoveConnection(layer, key)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for layer, ep := range g.entryPoints {
		if ep.Key != key {
			continue
		}

		replacement := g.survivingNeighborLocked(byLayer[layer])
		if replacement == nil {
			replacement = g.anyNodeAtOrAboveLocked(layer)
		}
		if replacement != nil {
			g.entryPoints[layer] = replacement
		} else {
			delete(g.entryPoints, layer)
		}
	}

	if _, ok := g.entryPoints[g.currentTop]; !ok {
		newTop := -1
		for l := range g.entryPoints {
			if l > newTop {
				newTop = l
			}
		}
		g.currentTop = newTop
	}

	return nil
}

// survivingNeighborLocked requires the caller to hold g.mu.
func (g *graph[T]) survivingNeighborLocked(candidates []NeighborRecord[T]) *Node[T] {
	for _, nb := range candidates {
		if _, ok := g.nodes[nb.Node.Key]; ok {
			return nb.Node
		}
	}
	return nil
}

// anyNodeAtOrAboveLocked requires the caller to hold g.mu.
func (g *graph[T]) anyNodeAtOrAboveLocked(layer int) *Node[T] {
	for _, candidate := range g.nodes {
		if candidate.topLayer >= layer {
			return candidate
		}
	}
	return nil
}

// snapshotNodes returns every node in the graph, sorted by key for
// deterministic iteration — used by Analyzer, which otherwise would
// observe Go's randomized map iteration order. Grounded on
// coder-hnsw/graph.go's use of maps.Keys + slices.Sort for deterministic
// traversal.
func (g *graph[T]) snapshotNodes() []*Node[T] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := maps.Values(g.nodes)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes
}
