// Package diag implements the Diagnostics component: per-bucket occupancy
// counting and allocator fill counting, the two passes behind
// ComputeLoadFactor (spec 4.6).
package diag

import (
	"math/bits"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
)

// BucketOccupancy walks every bucket's chain and popcounts non-empty pair
// slots per slab, summing into one count per bucket — pass 1 of spec 4.6.
// In hardware this is one popcount(ballot(pred)) per slab per warp; here
// the mask is built lane-by-lane and then popcounted, so the final count
// is produced the same way even though nothing runs in true lockstep.
func BucketOccupancy(buckets *bucket.Array, slabs *slab.Allocator) []int {
	counts := make([]int, buckets.Len())
	for b := 0; b < buckets.Len(); b++ {
		s := buckets.Head(uint32(b))
		total := 0
		for {
			var mask uint32
			for lane := 0; lane < proto.NextSlabLane; lane++ {
				if s.Load(lane) != uint32(proto.EmptyPair) {
					mask |= uint32(1) << uint(lane)
				}
			}
			total += bits.OnesCount32(mask)

			next := s.Load(proto.NextSlabLane)
			if next == uint32(proto.EmptySlab) {
				break
			}
			s = slabs.SlabAt(proto.SlabIndex(next))
		}
		counts[b] = total
	}
	return counts
}

// AllocatorFill reports the slab allocator's total capacity and how many
// slabs are currently checked out (allocated = total - free) — pass 2 of
// spec 4.6, "each thread processes one bitmap... accumulates popcount of
// set bits".
func AllocatorFill(slabs *slab.Allocator) (total, allocated int) {
	total, free := slabs.Stats()
	return total, total - free
}

// LoadFactor computes spec 6's ComputeLoadFactor: bytes of live pair data
// divided by bytes of allocated slab storage, where allocated slab storage
// counts head slabs (one per bucket, never freed) plus all currently-
// allocated non-head slabs.
func LoadFactor(numBuckets int, slabs *slab.Allocator, liveElements int64, keyValueBytes int) float64 {
	_, allocatedHeapSlabs := AllocatorFill(slabs)
	totalSlabs := numBuckets + allocatedHeapSlabs
	if totalSlabs == 0 {
		return 0
	}
	numerator := float64(liveElements) * float64(keyValueBytes)
	denominator := float64(totalSlabs) * float64(proto.WordsPerSlab) * 4
	return numerator / denominator
}

// PackedBucketOccupancy is BucketOccupancy for the packed variant.
func PackedBucketOccupancy(buckets *bucket.PackedArray, slabs *slab.PackedAllocator) []int {
	counts := make([]int, buckets.Len())
	for b := 0; b < buckets.Len(); b++ {
		s := buckets.Head(uint32(b))
		total := 0
		for {
			var mask uint32
			for lane := 0; lane < proto.NextSlabLane; lane++ {
				if s.Load(lane) != proto.EmptyPairPacked {
					mask |= uint32(1) << uint(lane)
				}
			}
			total += bits.OnesCount32(mask)

			next := s.Load(proto.NextSlabLane)
			if next == proto.EmptySlabPacked {
				break
			}
			s = slabs.SlabAt(proto.SlabIndex(uint32(next)))
		}
		counts[b] = total
	}
	return counts
}

// PackedLoadFactor computes the packed variant's load factor: every slot
// is a fixed 8 bytes whether live or empty, so this reduces to live-slot
// count over total-slot count across all allocated slabs (head slabs
// included).
func PackedLoadFactor(buckets *bucket.PackedArray, slabs *slab.PackedAllocator) float64 {
	occupancy := PackedBucketOccupancy(buckets, slabs)
	var live int
	for _, c := range occupancy {
		live += c
	}
	_, allocatedHeapSlabs := PackedAllocatorFill(slabs)
	totalSlabs := buckets.Len() + allocatedHeapSlabs
	if totalSlabs == 0 {
		return 0
	}
	return float64(live) / float64(totalSlabs*proto.NextSlabLane)
}

// PackedAllocatorFill is AllocatorFill for the packed variant.
func PackedAllocatorFill(slabs *slab.PackedAllocator) (total, allocated int) {
	total, free := slabs.Stats()
	return total, total - free
}
