package bucket

import "github.com/minio/slabhash/internal/proto"

// PackedArray is BucketArray specialized to proto.PackedSlab, for tables
// built on the packed key+value variant.
type PackedArray struct {
	heads []proto.PackedSlab
}

// NewPacked builds a packed-variant head-slab array.
func NewPacked(numBuckets int) *PackedArray {
	a := &PackedArray{heads: make([]proto.PackedSlab, numBuckets)}
	for i := range a.heads {
		a.heads[i].Reset()
	}
	return a
}

// Len reports num_buckets.
func (a *PackedArray) Len() int {
	return len(a.heads)
}

// Head returns the head slab for bucketID.
func (a *PackedArray) Head(bucketID uint32) *proto.PackedSlab {
	return &a.heads[bucketID]
}
