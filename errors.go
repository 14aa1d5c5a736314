package slabhash

import (
	"errors"

	"github.com/minio/slabhash/internal/proto"
)

// Error classification for Table operations.
//
// Callers MUST classify using errors.Is; implementations may wrap these
// with additional context via fmt.Errorf("...: %w", err).
var (
	// ErrOutOfPairs is returned when PairAllocator has no free records left.
	// The lane that hit it produces a failed Insert for its key; other lanes
	// in the same batch are unaffected.
	ErrOutOfPairs = proto.ErrOutOfPairs

	// ErrOutOfSlabs is returned when SlabAllocator has no free slab left
	// across any super-block. Same per-lane failure semantics as
	// ErrOutOfPairs.
	ErrOutOfSlabs = proto.ErrOutOfSlabs

	// ErrInvariantViolation guards configuration that would break the
	// 32-word/32-lane layout or addressing scheme. It is only raised at
	// construction time and should be unreachable afterward.
	ErrInvariantViolation = proto.ErrInvariantViolation

	// ErrClosed is returned by any bulk operation called after Close.
	ErrClosed = errors.New("slabhash: table closed")

	// ErrDeviceUnavailable surfaces device-runtime-level failures: launch,
	// sync, or allocation errors from the simulated device layer. It is
	// the software-SIMT analogue of spec's DeviceError.
	ErrDeviceUnavailable = errors.New("slabhash: device unavailable")
)
