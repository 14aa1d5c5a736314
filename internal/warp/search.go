package warp

import (
	"math/bits"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/pairpool"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
)

// SearchOutcome is one lane's result: spec 4.4.1's (pair_index_or_null,
// found_flag), before the caller reads the value out via PairAllocator.
type SearchOutcome struct {
	PairIndex proto.PairIndex
	Found     bool
}

// RunSearchWarp services up to proto.LanesPerWarp keys as one simulated
// warp, implementing spec 4.4.1.
func RunSearchWarp[K comparable, V any](
	buckets *bucket.Array,
	slabs *slab.Allocator,
	pairs *pairpool.Allocator[K, V],
	hash func(K) uint32,
	keys []K,
) []SearchOutcome {
	n := len(keys)
	outcomes := make([]SearchOutcome, n)
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
			outcomes[srcLane] = SearchOutcome{PairIndex: proto.PairIndex(words[foundLane]), Found: true}
			active[srcLane] = false
			prevMask = mask
			continue
		}

		next := words[proto.NextSlabLane]
		if next == uint32(proto.EmptySlab) {
			outcomes[srcLane] = SearchOutcome{Found: false}
			active[srcLane] = false
			prevMask = mask
			continue
		}
		walker.advance(slabs.SlabAt(proto.SlabIndex(next)))
		prevMask = mask
	}

	return outcomes
}
