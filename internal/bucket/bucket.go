// Package bucket implements BucketArray: a contiguous array of head slabs,
// one per bucket, sized at construction. A bucket's head slab is never
// freed for the table's lifetime; further slabs in the bucket's chain are
// reached through the head's slot 31 and live in a slab.Allocator.
package bucket

import "github.com/minio/slabhash/internal/proto"

// Array is BucketArray.
type Array struct {
	heads []proto.Slab
}

// New builds an array of numBuckets head slabs, every slot initialized to
// the empty sentinel (spec 4.3: "Initialized by setting all bytes to
// 0xFF").
func New(numBuckets int) *Array {
	a := &Array{heads: make([]proto.Slab, numBuckets)}
	for i := range a.heads {
		a.heads[i].Reset()
	}
	return a
}

// Len reports num_buckets.
func (a *Array) Len() int {
	return len(a.heads)
}

// Head returns the head slab for bucketID, the Go analogue of
// pointer_of_head(bucket_id, lane_id) — callers address individual lanes
// through the returned Slab.
func (a *Array) Head(bucketID uint32) *proto.Slab {
	return &a.heads[bucketID]
}
