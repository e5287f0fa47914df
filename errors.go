package hnsw

import "errors"

// Error kinds reported by Index and graph operations (spec.md §7).
var (
	// ErrAlreadyExists is returned by Insert when the key is already
	// present in the index. Index state is left unchanged.
	ErrAlreadyExists = errors.New("hnsw: key already exists")

	// ErrNotFound is returned by the graph's remove primitive for an
	// absent key, and by Node.RemoveConnection for an absent layer or
	// neighbor. Index.Lookup reports a missing key with a false bool
	// instead.
	ErrNotFound = errors.New("hnsw: key not found")

	// ErrInvalidArgument is returned for out-of-range parameters: k > ef,
	// k == 0, an empty vector, or an invalid constructor parameter.
	ErrInvalidArgument = errors.New("hnsw: invalid argument")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index's configured dimension.
	ErrDimensionMismatch = errors.New("hnsw: dimension mismatch")

	// ErrCapacityReached is returned internally by Node.AddConnection
	// under the reject-on-full capacity policy. It is never surfaced by
	// Index.Insert, which always succeeds once validation passes.
	ErrCapacityReached = errors.New("hnsw: neighbor capacity reached")
)
