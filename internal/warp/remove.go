package warp

import (
	"math/bits"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/pairpool"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
)

// RemoveOutcome is one lane's result. Removed is false both for "key
// absent" and for "another warp already cleared this exact reference" —
// spec 4.4.3 treats both as a no-op from the caller's point of view, and
// warns that under heavy contention a present key's Remove can legitimately
// return false if it races a re-insertion into a different slot.
type RemoveOutcome struct {
	Removed bool
}

// RunRemoveWarp services up to proto.LanesPerWarp keys as one simulated
// warp, implementing spec 4.4.3: a find phase identical to Search, then a
// CAS clearing the exact observed pair index and freeing it only on a win.
func RunRemoveWarp[K comparable, V any](
	buckets *bucket.Array,
	slabs *slab.Allocator,
	pairs *pairpool.Allocator[K, V],
	hash func(K) uint32,
	keys []K,
) []RemoveOutcome {
	n := len(keys)
	outcomes := make([]RemoveOutcome, n)
	active := make([]bool, n)
	bucketOf := make([]uint32, n)

	numBuckets := uint32(buckets.Len())
	for i := 0; i < n; i++ {
		bucketOf[i] = hash(keys[i]) % numBuckets
		active[i] = true
	}

	walker := newChainWalker(buckets)
	var prevMask uint32

	for {
		mask := ballot(active)
		if mask == 0 {
			break
		}
		srcLane := bits.TrailingZeros32(mask)

		if mask != prevMask {
			walker.resetToHead(bucketOf[srcLane])
		}
		slabPtr := walker.current()
		words := readWords(slabPtr)

		foundLane := findKeyLane(&words, func(pi proto.PairIndex) bool {
			return pairs.Extract(pi).Key == keys[srcLane]
		})
		if foundLane >= 0 {
			observed := words[foundLane]
			won := slabPtr.CompareAndSwap(foundLane, observed, uint32(proto.EmptyPair))
			if won {
				pairs.Free(proto.PairIndex(observed))
			}
			// A second pass would be incorrect even on a loss: the key may
			// have been re-inserted into a different slot by now, so
			// Remove either way clears active after exactly one find+CAS
			// attempt.
			outcomes[srcLane] = RemoveOutcome{Removed: won}
			active[srcLane] = false
			prevMask = mask
			continue
		}

		next := words[proto.NextSlabLane]
		if next == uint32(proto.EmptySlab) {
			outcomes[srcLane] = RemoveOutcome{Removed: false}
			active[srcLane] = false
			prevMask = mask
			continue
		}
		walker.advance(slabs.SlabAt(proto.SlabIndex(next)))
		prevMask = mask
	}

	return outcomes
}
