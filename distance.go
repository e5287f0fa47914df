package hnsw

import (
	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// Float is the set of element types a vector's components may have.
type Float interface {
	~float32 | ~float64
}

// Metric computes a non-negative dissimilarity score between two
// equal-length vectors; lower means closer. Implementations must not
// mutate their arguments. Preconditions: len(a) == len(b) == dim, dim >= 1.
type Metric[T Float] interface {
	Evaluate(a, b []T) float32
}

// MetricFunc adapts a plain function to the Metric interface, covering the
// "user-supplied closure / function pointer" shape.
type MetricFunc[T Float] func(a, b []T) float32

func (f MetricFunc[T]) Evaluate(a, b []T) float32 {
	return f(a, b)
}

// DistCosine computes 1 - cos(a, b) over float32 vectors. Returns 0 when
// either vector has zero norm, since cosine similarity is undefined there.
type DistCosine struct{}

func (DistCosine) Evaluate(a, b []float32) float32 {
	dot := vek32.Dot(a, b)
	normA := vek32.Dot(a, a)
	normB := vek32.Dot(b, b)
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return 1 - dot/math32.Sqrt(normA*normB)
}

// DistDot computes 1 - <a, b>. Intended for use after both operands have
// been L2-normalized, so that it agrees with DistCosine.
type DistDot struct{}

func (DistDot) Evaluate(a, b []float32) float32 {
	return 1 - vek32.Dot(a, b)
}

// DistEuclidean computes the Euclidean (L2) distance between two vectors.
// Kept available as a selectable Metric rather than hardcoded into the
// graph layer (see the Open Question resolution in SPEC_FULL.md §9).
type DistEuclidean struct{}

func (DistEuclidean) Evaluate(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}

// L2Normalize divides each component of v by its L2 norm in place. Vectors
// with zero norm are left untouched.
func L2Normalize(v []float32) {
	norm := math32.Sqrt(vek32.Dot(v, v))
	if norm <= 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
