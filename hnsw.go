package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"
)

// Config holds the parameters an Index is constructed with. M,
// EfConstruction and Metric must be set before calling New; the other
// fields have usable zero values. All are immutable for the lifetime of
// the Index. Grounded on coder-hnsw's Graph[K] field set (M, Ml,
// EfSearch, Distance, Rng), generalized per spec.md §4 to a configurable
// Metric and the two Open Question resolutions recorded in SPEC_FULL.md
// §9: the capacity policy is an explicit flag rather than hardcoded, and
// the random-level cap is an explicit parameter rather than derived from
// the graph's current size.
type Config[T Float] struct {
	// M is the maximum number of neighbors kept per node per layer.
	M int

	// EfConstruction is the candidate pool size used while searching for
	// neighbors to connect a newly inserted node.
	EfConstruction int

	// MaxLayerCap bounds the random level a node may be assigned; layer 0
	// always exists regardless of this value.
	MaxLayerCap int

	// Metric computes the dissimilarity between two vectors. Required.
	Metric Metric[T]

	// RejectOnFull selects the original source's capacity policy (return
	// ErrCapacityReached once a node's per-layer neighbor list is full)
	// instead of the default farthest-replacement policy.
	RejectOnFull bool

	// Rng drives random level assignment. A deterministic Rng is useful
	// for reproducible tests, but see coder-hnsw's Graph.Rng doc comment:
	// deterministic generation can produce degenerate graphs under
	// adversarial insert order. Defaults to a time-seeded source.
	Rng *rand.Rand
}

// Item is one (key, vector) pair for ParallelInsert.
type Item[T Float] struct {
	Key    string
	Vector []T
}

// SearchResult is one match returned by Search, ordered ascending by
// Distance.
type SearchResult[T Float] struct {
	Key      string
	Distance float32
}

// Index is a concurrency-safe Hierarchical Navigable Small World index:
// the public façade over graph's layer primitives, implementing Insert,
// Search and their data-parallel batch variants (spec.md §1 surface).
type Index[T Float] struct {
	g *graph[T]

	m              int
	efConstruction int
	maxLayerCap    int
	metric         Metric[T]
	rejectOnFull   bool

	rngMu sync.Mutex
	rng   *rand.Rand

	dimMu sync.RWMutex
	dim   int
}

// New constructs an Index from cfg, validating every parameter.
func New[T Float](cfg Config[T]) (*Index[T], error) {
	if cfg.M < 2 {
		return nil, fmt.Errorf("%w: M must be >= 2, got %d", ErrInvalidArgument, cfg.M)
	}
	if cfg.EfConstruction <= 0 {
		return nil, fmt.Errorf("%w: EfConstruction must be greater than 0, got %d", ErrInvalidArgument, cfg.EfConstruction)
	}
	if cfg.MaxLayerCap < 0 {
		return nil, fmt.Errorf("%w: MaxLayerCap must be >= 0, got %d", ErrInvalidArgument, cfg.MaxLayerCap)
	}
	if cfg.Metric == nil {
		return nil, fmt.Errorf("%w: Metric must be set", ErrInvalidArgument)
	}

	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Index[T]{
		g:              newGraph[T](),
		m:              cfg.M,
		efConstruction: cfg.EfConstruction,
		maxLayerCap:    cfg.MaxLayerCap,
		metric:         cfg.Metric,
		rejectOnFull:   cfg.RejectOnFull,
		rng:            rng,
	}, nil
}

// randomLevel draws a node's top layer from the closed-form geometric
// level distribution L = clamp(floor(ln(U)/ln(1/M)), 0, MaxLayerCap),
// with U drawn uniformly from (0, 1): level 0 is the most common draw and
// each higher level is about M times rarer than the one below.
func (idx *Index[T]) randomLevel() int {
	idx.rngMu.Lock()
	u := idx.rng.Float64()
	idx.rngMu.Unlock()

	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}

	level := int(math.Floor(math.Log(u) / math.Log(1/float64(idx.m))))
	if level < 0 {
		level = 0
	}
	if level > idx.maxLayerCap {
		level = idx.maxLayerCap
	}
	return level
}

// Insert adds key/vector to the index. It fails with ErrAlreadyExists if
// key is already present, ErrDimensionMismatch if vector's length
// disagrees with previously inserted vectors, and ErrInvalidArgument for
// an empty key or vector. Grounded on coder-hnsw/graph.go's Graph.Add and
// original_source/src/hnsw_graph/graph.rs's insert, generalized to the
// single-Node-with-layer-map data model of SPEC_FULL.md §3.
func (idx *Index[T]) Insert(key string, vector []T) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidArgument)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector must not be empty", ErrInvalidArgument)
	}
	if err := idx.checkDim(vector); err != nil {
		return err
	}
	if _, ok := idx.g.lookup(key); ok {
		return ErrAlreadyExists
	}

	level := idx.randomLevel()
	n := newNode[T](key, vector, level)

	if idx.g.nodeCount() == 0 {
		idx.g.register(n)
		return nil
	}

	currentTop := idx.g.topLayer()
	entry, ok := idx.g.entryPointAt(currentTop)
	if !ok {
		idx.g.register(n)
		return nil
	}

	for l := currentTop; l > level; l-- {
		entry = idx.g.greedyDescend(vector, entry, l, idx.metric)
	}

	top := level
	if currentTop < top {
		top = currentTop
	}
	for l := top; l >= 0; l-- {
		candidates := idx.g.searchLayer(vector, entry, l, idx.efConstruction, idx.metric)
		for i, cand := range candidates {
			if i >= idx.m {
				break
			}
			idx.g.connectEdge(n, cand.Node, l, idx.m, idx.metric, idx.rejectOnFull)
		}
		if len(candidates) > 0 {
			entry = candidates[0].Node
		}
	}

	idx.g.register(n)
	return nil
}

// Search returns the k nearest neighbors of query, searching with
// candidate pool size ef (ef must be >= k). Grounded on
// coder-hnsw/graph.go's Graph.Search: descend greedily through the upper
// layers to find a base-layer entry point, then run one bounded
// best-first search at layer 0.
func (idx *Index[T]) Search(query []T, k, ef int) ([]SearchResult[T], error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be greater than 0, got %d", ErrInvalidArgument, k)
	}
	if ef < k {
		return nil, fmt.Errorf("%w: ef must be >= k, got ef=%d k=%d", ErrInvalidArgument, ef, k)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: query vector must not be empty", ErrInvalidArgument)
	}

	if idx.g.nodeCount() == 0 {
		return nil, nil
	}
	if d := idx.peekDim(); d != 0 && d != len(query) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), d)
	}

	currentTop := idx.g.topLayer()
	entry, ok := idx.g.entryPointAt(currentTop)
	if !ok {
		return nil, nil
	}

	for l := currentTop; l > 0; l-- {
		entry = idx.g.greedyDescend(query, entry, l, idx.metric)
	}

	results := idx.g.searchLayer(query, entry, 0, ef, idx.metric)
	if len(results) > k {
		results = results[:k]
	}

	out := make([]SearchResult[T], len(results))
	for i, r := range results {
		out[i] = SearchResult[T]{Key: r.Node.Key, Distance: r.Distance}
	}
	return out, nil
}

// ParallelInsert runs Insert over items concurrently, bounded by
// runtime.NumCPU workers, and returns one error per item in input order.
// Safe to call alongside other Insert/Search calls: the concurrency
// discipline lives in graph's per-node locks and canonical edge-locking
// order, not in Index itself. Grounded on coder-hnsw/graph.go's
// ParallelSearch worker-pool shape, applied here to data-parallel insert
// instead of within-one-query parallelism (spec.md §5).
func (idx *Index[T]) ParallelInsert(items []Item[T]) []error {
	errs := make([]error, len(items))

	workers := runtime.NumCPU()
	if workers > len(items) {
		workers = len(items)
	}
	if workers <= 0 {
		return errs
	}

	jobs := make(chan int, len(items))
	for i := range items {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = idx.Insert(items[i].Key, items[i].Vector)
			}
		}()
	}
	wg.Wait()

	return errs
}

// ParallelSearch runs Search(query, k, ef) over queries concurrently,
// bounded by runtime.NumCPU workers, returning one result slice and one
// error per query in input order.
func (idx *Index[T]) ParallelSearch(queries [][]T, k, ef int) ([][]SearchResult[T], []error) {
	results := make([][]SearchResult[T], len(queries))
	errs := make([]error, len(queries))

	workers := runtime.NumCPU()
	if workers > len(queries) {
		workers = len(queries)
	}
	if workers <= 0 {
		return results, errs
	}

	jobs := make(chan int, len(queries))
	for i := range queries {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = idx.Search(queries[i], k, ef)
			}
		}()
	}
	wg.Wait()

	return results, errs
}

// Lookup returns the vector stored under key, if present.
func (idx *Index[T]) Lookup(key string) ([]T, bool) {
	n, ok := idx.g.lookup(key)
	if !ok {
		return nil, false
	}
	return n.Vector, true
}

// NodeCount returns the number of vectors currently indexed.
func (idx *Index[T]) NodeCount() int {
	return idx.g.nodeCount()
}

// checkDim records the index's dimension on the first call (only Insert
// calls this) and enforces it on every subsequent call.
func (idx *Index[T]) checkDim(vector []T) error {
	idx.dimMu.Lock()
	defer idx.dimMu.Unlock()

	if idx.dim == 0 {
		idx.dim = len(vector)
		return nil
	}
	if idx.dim != len(vector) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), idx.dim)
	}
	return nil
}

// peekDim returns the index's established dimension, or 0 if no vector
// has been inserted yet.
func (idx *Index[T]) peekDim() int {
	idx.dimMu.RLock()
	defer idx.dimMu.RUnlock()
	return idx.dim
}
