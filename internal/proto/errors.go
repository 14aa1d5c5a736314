package proto

import "errors"

// Canonical error values. slabhash re-exports these so callers can keep
// classifying with errors.Is against the public package without reaching
// into internal/proto themselves.
var (
	// ErrOutOfPairs means PairAllocator's fixed pool is exhausted.
	ErrOutOfPairs = errors.New("slabhash: pair pool exhausted")

	// ErrOutOfSlabs means SlabAllocator found no free bit in any bitmap
	// across any super-block.
	ErrOutOfSlabs = errors.New("slabhash: slab pool exhausted")

	// ErrInvariantViolation guards misconfiguration caught at construction
	// time (non-positive bucket count or pool size, negative device index,
	// nil hash). Should be unreachable once a table is constructed.
	ErrInvariantViolation = errors.New("slabhash: invariant violation")
)
