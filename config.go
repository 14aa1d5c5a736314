package slabhash

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// Config holds the construction parameters spec 6 names: num_buckets,
// max_keyvalue_count, device_index, and an optional seed for hash
// parameterization.
type Config struct {
	// NumBuckets is the bucket count, fixed for the table's lifetime.
	NumBuckets int

	// MaxKeyValueCount sizes PairAllocator's fixed pool.
	MaxKeyValueCount int

	// DeviceIndex selects which logical device this table is bound to.
	// With no physical accelerator behind this implementation it is
	// carried purely as a construction parameter and an attribute on
	// every Insert/Search/Remove span, per spec 6 — it is not dropped just
	// because there is nothing to bind to.
	DeviceIndex int

	// Seed is passed to Uint32Hash when NewPacked is given a nil hash.
	// New does not read it: its HashFunc is required and carries its own
	// seed (StringHash(seed), ...).
	Seed uint64

	// MaxSlabCount bounds SlabAllocator's heap-slab pool (slabs reachable
	// through a chain's slot 31, not counting head slabs). Spec's
	// construction parameters don't name a separate slab-pool size — see
	// DESIGN.md's Open Question decision — so a generous default sized
	// off MaxKeyValueCount is used when this is left at zero.
	MaxSlabCount int

	// MaxConcurrentWarps bounds how many simulated warps run at once,
	// the Go analogue of grid occupancy. Defaults to GOMAXPROCS*4,
	// mirroring the teacher's runtime.NumCPU()*4 worker-pool sizing
	// (NewV3CacheManager).
	MaxConcurrentWarps int

	// Logger receives structured diagnostic/failure logging. Defaults to
	// logrus.StandardLogger() when nil.
	Logger *logrus.Logger
}

// withDefaults returns a copy of cfg with zero-valued fields filled in.
func (cfg Config) withDefaults() Config {
	out := cfg
	if out.MaxSlabCount <= 0 {
		out.MaxSlabCount = out.MaxKeyValueCount/30 + out.NumBuckets + 1
	}
	if out.MaxConcurrentWarps <= 0 {
		out.MaxConcurrentWarps = runtime.GOMAXPROCS(0) * 4
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return out
}
