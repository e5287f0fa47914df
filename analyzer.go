package hnsw

// Analyzer reports structural statistics about an Index's graph: its
// height, per-layer population, and per-layer average connectivity.
// Grounded on coder-hnsw/analyzer.go's Analyzer[T], adapted to the
// single-Node-with-layer-map data model: "layers" are derived from each
// node's TopLayer rather than read off a Graph.layers slice, since a node
// with TopLayer >= l is present at every layer up to l (spec.md §3's
// "all nodes in a higher layer also exist in every lower layer"
// invariant).
type Analyzer[T Float] struct {
	Index *Index[T]
}

// Height returns the number of layers currently in the graph (0 if the
// index is empty).
func (a *Analyzer[T]) Height() int {
	top := a.Index.g.topLayer()
	if top < 0 {
		return 0
	}
	return top + 1
}

// Topography returns the number of nodes present at each layer, indexed
// by layer number.
func (a *Analyzer[T]) Topography() []int {
	height := a.Height()
	if height == 0 {
		return nil
	}

	counts := make([]int, height)
	for _, n := range a.Index.g.snapshotNodes() {
		top := n.TopLayer()
		if top >= height {
			top = height - 1
		}
		for l := 0; l <= top; l++ {
			counts[l]++
		}
	}
	return counts
}

// Connectivity returns the average number of neighbors per node at each
// layer, indexed by layer number.
func (a *Analyzer[T]) Connectivity() []float64 {
	height := a.Height()
	if height == 0 {
		return nil
	}

	sums := make([]float64, height)
	counts := make([]int, height)

	for _, n := range a.Index.g.snapshotNodes() {
		top := n.TopLayer()
		if top >= height {
			top = height - 1
		}
		for l := 0; l <= top; l++ {
			neighbors, _ := n.NeighborsAt(l)
			sums[l] += float64(len(neighbors))
			counts[l]++
		}
	}

	out := make([]float64, height)
	for l := 0; l < height; l++ {
		if counts[l] == 0 {
			continue
		}
		out[l] = sums[l] / float64(counts[l])
	}
	return out
}
