// Package slab implements SlabAllocator: a fixed-size pool of proto.Slab
// cells backed by per-block free bitmaps, warp-cooperatively allocated and
// thread-locally freed. Grounded on the bit-CAS retry loop the teacher
// uses for its lock-free ring buffer (internal/cache/cache_engine_v3.go's
// LockFreeRingBuffer Push/Pop) and on the bitmap-of-free-slots layout shown
// by the falloc-style allocators in the reference corpus.
package slab

import (
	"math/bits"
	"sync/atomic"

	"github.com/minio/slabhash/internal/proto"
)

// slabsPerBlock is fixed at 32 so one bitmap word covers exactly one memory
// block, matching spec 4.1's "each memory block has a 32-bit bitmap".
const slabsPerBlock = 32

// Allocator is the device-resident slab pool. Memory is a single flat run
// of memory blocks of 32 slabs, one bitmap word per block; blocks are not
// grouped into super-blocks. Allocation scans bitmaps starting from a per-warp offset and proceeds
// cyclically to spread contention across warps that start scanning at
// different points.
type Allocator struct {
	slabs   []proto.Slab
	bitmaps []atomic.Uint32 // bit=1 means the corresponding slab is free
}

// Cursor is the thread-local state seeded once per warp by Init, before any
// call to Allocate. It exists so that concurrently-running warps begin
// their bitmap scan at different offsets instead of all contending on
// bitmap 0.
type Cursor struct {
	offset uint32
}

// New builds an allocator sized to hold at least minSlabs slabs, rounded up
// to a whole number of memory blocks.
func New(minSlabs int) *Allocator {
	if minSlabs <= 0 {
		minSlabs = slabsPerBlock
	}
	numBlocks := (minSlabs + slabsPerBlock - 1) / slabsPerBlock
	a := &Allocator{
		slabs:   make([]proto.Slab, numBlocks*slabsPerBlock),
		bitmaps: make([]atomic.Uint32, numBlocks),
	}
	for i := range a.slabs {
		a.slabs[i].Reset()
	}
	for i := range a.bitmaps {
		a.bitmaps[i].Store(0xFFFFFFFF) // every slab starts free
	}
	return a
}

// Init seeds a per-warp Cursor from the warp's global id and lane id, per
// spec 4.1's "deterministic per-warp starting offset". The exact hash
// matters less than that distinct warps land on distinct starting bitmaps.
func (a *Allocator) Init(warpID, laneID uint32) Cursor {
	h := warpID*2654435761 + laneID
	return Cursor{offset: h}
}

// Allocate is warp-cooperative in the sense that every lane of a warp
// conceptually observes the same result; since this implementation models
// a warp as a single goroutine stepping a lane-state vector, that is
// satisfied by construction — there is only one caller per warp.
func (a *Allocator) Allocate(c Cursor) (proto.SlabIndex, error) {
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
				break // no free bit in this block, move to the next
			}
			bit := bits.TrailingZeros32(cur)
			next := cur &^ (uint32(1) << uint(bit))
			if bm.CompareAndSwap(cur, next) {
				idx := proto.SlabIndex(bmIdx*slabsPerBlock + bit)
				a.slabs[idx].Reset()
				return idx, nil
			}
			// Another warp raced us for this exact bit; retry the same
			// bitmap word before moving on.
		}
	}
	return 0, proto.ErrOutOfSlabs
}

// FreeUntouched releases a slab whose contents have not yet been observed
// by any other warp: the loser of a Branch-3.2 publication race calling
// back out. It is thread-local — no warp coordination required, since the
// caller is the sole owner of an unpublished slab.
func (a *Allocator) FreeUntouched(idx proto.SlabIndex) {
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

// SlabAt maps a slab index to the slab it identifies. This is the Go
// analogue of pointer_of(slab_index, lane_id): callers then address a
// single lane's word via the returned Slab's Load/Store/CompareAndSwap.
func (a *Allocator) SlabAt(idx proto.SlabIndex) *proto.Slab {
	return &a.slabs[idx]
}

// Stats reports total and currently-free slab counts, for Diagnostics'
// allocator-fill pass (spec 4.6 pass 2).
func (a *Allocator) Stats() (total, free int) {
	total = len(a.slabs)
	for i := range a.bitmaps {
		free += bits.OnesCount32(a.bitmaps[i].Load())
	}
	return total, free
}

// Reset restores every bitmap to all-free and every slab to the empty
// pattern. Test-only: production tables never rewind an allocator.
func (a *Allocator) Reset() {
	for i := range a.slabs {
		a.slabs[i].Reset()
	}
	for i := range a.bitmaps {
		a.bitmaps[i].Store(0xFFFFFFFF)
	}
}
