package slab

import (
	"math/bits"
	"sync/atomic"

	"github.com/minio/slabhash/internal/proto"
)

// PackedAllocator is SlabAllocator specialized to proto.PackedSlab. It is a
// separate type rather than a generic one over slab "kind" because the two
// variants differ in word width (32-bit vs 64-bit), not in allocation
// policy — duplicating the bitmap scan here keeps each variant's CAS width
// concrete and inlinable, the same tradeoff the spec's packed (`_global`)
// kernel variant makes over the index-addressed one.
type PackedAllocator struct {
	slabs   []proto.PackedSlab
	bitmaps []atomic.Uint32
}

// NewPacked builds a packed-variant allocator sized to hold at least
// minSlabs slabs.
func NewPacked(minSlabs int) *PackedAllocator {
	if minSlabs <= 0 {
		minSlabs = slabsPerBlock
	}
	numBlocks := (minSlabs + slabsPerBlock - 1) / slabsPerBlock
	a := &PackedAllocator{
		slabs:   make([]proto.PackedSlab, numBlocks*slabsPerBlock),
		bitmaps: make([]atomic.Uint32, numBlocks),
	}
	for i := range a.slabs {
		a.slabs[i].Reset()
	}
	for i := range a.bitmaps {
		a.bitmaps[i].Store(0xFFFFFFFF)
	}
	return a
}

// Init mirrors Allocator.Init.
func (a *PackedAllocator) Init(warpID, laneID uint32) Cursor {
	h := warpID*2654435761 + laneID
	return Cursor{offset: h}
}

// Allocate mirrors Allocator.Allocate.
func (a *PackedAllocator) Allocate(c Cursor) (proto.SlabIndex, error) {
	total := len(a.bitmaps)
	if total == 0 {
		return 0, proto.ErrOutOfSlabs
	}
	start := int(c.offset % uint32(total))
	for i := 0; i < total; i++ {
		bmIdx := (start + i) % total
		bm := &a.bitmaps[bmIdx]
		for {
			cur := bm.Load()
			if cur == 0 {
				break
			}
			bit := bits.TrailingZeros32(cur)
			next := cur &^ (uint32(1) << uint(bit))
			if bm.CompareAndSwap(cur, next) {
				idx := proto.SlabIndex(bmIdx*slabsPerBlock + bit)
				a.slabs[idx].Reset()
				return idx, nil
			}
		}
	}
	return 0, proto.ErrOutOfSlabs
}

// FreeUntouched mirrors Allocator.FreeUntouched.
func (a *PackedAllocator) FreeUntouched(idx proto.SlabIndex) {
	bmIdx := int(idx) / slabsPerBlock
	bit := uint32(idx) % slabsPerBlock
	bm := &a.bitmaps[bmIdx]
	for {
		cur := bm.Load()
		next := cur | (uint32(1) << bit)
		if bm.CompareAndSwap(cur, next) {
			return
		}
	}
}

// SlabAt mirrors Allocator.SlabAt.
func (a *PackedAllocator) SlabAt(idx proto.SlabIndex) *proto.PackedSlab {
	return &a.slabs[idx]
}

// Stats mirrors Allocator.Stats.
func (a *PackedAllocator) Stats() (total, free int) {
	total = len(a.slabs)
	for i := range a.bitmaps {
		free += bits.OnesCount32(a.bitmaps[i].Load())
	}
	return total, free
}
