package hnsw

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func keyFor(i int) string {
	return fmt.Sprintf("k%d", i)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config[float32]{M: 0, EfConstruction: 10, Metric: DistEuclidean{}})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(Config[float32]{M: 1, EfConstruction: 10, Metric: DistEuclidean{}})
	require.ErrorIs(t, err, ErrInvalidArgument, "M=1 makes ln(1/M) == 0, which would divide randomLevel by zero")

	_, err = New(Config[float32]{M: 4, EfConstruction: 0, Metric: DistEuclidean{}})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(Config[float32]{M: 4, EfConstruction: 10, MaxLayerCap: -1, Metric: DistEuclidean{}})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(Config[float32]{M: 4, EfConstruction: 10})
	require.ErrorIs(t, err, ErrInvalidArgument)

	idx, err := New(Config[float32]{M: 4, EfConstruction: 10, Metric: DistEuclidean{}})
	require.NoError(t, err)
	require.NotNil(t, idx)
}

func TestInsert_DuplicateKey(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert("a", []float32{1, 2}))
	err := idx.Insert("a", []float32{3, 4})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, 1, idx.NodeCount())
}

func TestInsert_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))
	err := idx.Insert("b", []float32{1, 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsert_EmptyKeyOrVector(t *testing.T) {
	idx := newTestIndex(t)
	require.ErrorIs(t, idx.Insert("", []float32{1}), ErrInvalidArgument)
	require.ErrorIs(t, idx.Insert("a", nil), ErrInvalidArgument)
}

// S1 — exact match: searching for a vector already in the index returns
// it first, with distance 0.
func TestSearch_ExactMatch(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 64; i++ {
		require.NoError(t, idx.Insert(keyFor(i), []float32{float32(i)}))
	}

	results, err := idx.Search([]float32{32}, 1, 16)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, keyFor(32), results[0].Key)
	require.Equal(t, float32(0), results[0].Distance)
}

// S2 — nearest neighbors: for a line of integers, searching near the
// middle returns the closest points first, ascending by distance.
func TestSearch_NearestNeighborsOrdered(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 128; i++ {
		require.NoError(t, idx.Insert(keyFor(i), []float32{float32(i)}))
	}

	results, err := idx.Search([]float32{64.5}, 4, 64)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i := 1; i < len(results); i++ {
		require.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Key] = true
	}
	for _, want := range []string{keyFor(64), keyFor(65), keyFor(63), keyFor(66)} {
		require.True(t, seen[want], "expected %s among nearest neighbors", want)
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	idx := newTestIndex(t)
	results, err := idx.Search([]float32{1, 2}, 3, 10)
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestSearch_InvalidArguments(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert("a", []float32{1, 2}))

	_, err := idx.Search([]float32{1, 2}, 0, 10)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = idx.Search([]float32{1, 2}, 5, 2)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = idx.Search([]float32{1, 2, 3}, 1, 10)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

// Result length never exceeds k, and never exceeds the number of
// indexed points, regardless of ef.
func TestSearch_ResultLengthBounded(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Insert(keyFor(i), []float32{float32(i)}))
	}

	results, err := idx.Search([]float32{2}, 10, 20)
	require.NoError(t, err)
	require.Len(t, results, 5)
}

func TestLookup(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	v, ok := idx.Lookup("a")
	require.True(t, ok)
	require.Equal(t, []float32{1, 2, 3}, v)

	_, ok = idx.Lookup("missing")
	require.False(t, ok)
}

func TestParallelInsertAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	items := make([]Item[float32], 256)
	for i := range items {
		items[i] = Item[float32]{Key: keyFor(i), Vector: []float32{float32(i)}}
	}

	errs := idx.ParallelInsert(items)
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, len(items), idx.NodeCount())

	queries := [][]float32{{10}, {100}, {200}}
	results, errs := idx.ParallelSearch(queries, 3, 32)
	for _, err := range errs {
		require.NoError(t, err)
	}
	for _, r := range results {
		require.Len(t, r, 3)
	}
}

// random_level must stay within [0, MaxLayerCap] and land mostly at 0,
// matching the geometric falloff of the classic HNSW level distribution.
func TestRandomLevel_Distribution(t *testing.T) {
	idx, err := New(Config[float32]{
		M:              16,
		EfConstruction: 32,
		MaxLayerCap:    16,
		Metric:         DistEuclidean{},
		Rng:            rand.New(rand.NewSource(42)),
	})
	require.NoError(t, err)

	const draws = 100_000
	counts := make(map[int]int)
	for i := 0; i < draws; i++ {
		level := idx.randomLevel()
		require.GreaterOrEqual(t, level, 0)
		require.LessOrEqual(t, level, idx.maxLayerCap)
		counts[level]++
	}

	require.Greater(t, counts[0], draws/2, "level 0 should dominate the distribution")
}

// S6 — after inserting 100 vectors from a uniform distribution, every
// node's per-layer neighbor count stays within M (Testable Property 1),
// and every edge (a, b, l) has a reciprocal edge (b, a, l) at the same
// layer.
func TestInsert_BidirectionalEdgesAndCapacityInvariant(t *testing.T) {
	idx, err := New(Config[float32]{
		M:              8,
		EfConstruction: 32,
		MaxLayerCap:    8,
		Metric:         DistEuclidean{},
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	const n = 100
	for i := 0; i < n; i++ {
		vector := []float32{rng.Float32() * 100, rng.Float32() * 100, rng.Float32() * 100}
		require.NoError(t, idx.Insert(keyFor(i), vector))
	}
	require.Equal(t, n, idx.NodeCount())

	nodes := idx.g.snapshotNodes()
	require.Len(t, nodes, n)

	for _, a := range nodes {
		for layer := 0; layer <= a.TopLayer(); layer++ {
			// A node may have no entry at all for a given layer — e.g.
			// the very first node inserted into an empty index never
			// runs neighbor selection — which is equivalent to an empty
			// neighbor list, not a violation.
			aNeighbors, _ := a.NeighborsAt(layer)
			require.LessOrEqual(t, len(aNeighbors), idx.m,
				"node %s exceeds M=%d neighbors at layer %d", a.Key, idx.m, layer)

			for _, nb := range aNeighbors {
				bNeighbors, ok := nb.Node.NeighborsAt(layer)
				require.True(t, ok, "edge %s->%s at layer %d has no reciprocal list", a.Key, nb.Node.Key, layer)

				found := false
				for _, back := range bNeighbors {
					if back.Node.Key == a.Key {
						found = true
						break
					}
				}
				require.True(t, found, "edge %s->%s at layer %d has no reciprocal edge", a.Key, nb.Node.Key, layer)
			}
		}
	}
}

func TestInsert_ConcurrentWithSearch(t *testing.T) {
	idx := newTestIndex(t)
	for i := 0; i < 100; i++ {
		require.NoError(t, idx.Insert(keyFor(i), []float32{float32(i)}))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 100; i < 200; i++ {
			_ = idx.Insert(keyFor(i), []float32{float32(i)})
		}
	}()

	for i := 0; i < 50; i++ {
		_, err := idx.Search([]float32{float32(i)}, 3, 16)
		require.NoError(t, err)
	}
	<-done

	require.Equal(t, 200, idx.NodeCount())
}
