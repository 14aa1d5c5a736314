// Package proto holds the vocabulary shared by every layer of the slab
// hash table: the slab memory cell, index-handle types, and the sentinel
// values that distinguish "empty" from "a valid handle". It exists so that
// SlabAllocator, PairAllocator, BucketArray, and WarpProtocol can all speak
// the same wire format without importing one another.
package proto

import "sync/atomic"

const (
	// WordsPerSlab is the fixed slab width: 32 machine words, one per lane.
	WordsPerSlab = 32

	// LanesPerWarp is the SIMT execution width this design is built around.
	LanesPerWarp = 32

	// NextSlabLane is the reserved slot carrying the chain's next-slab
	// pointer (slot 31).
	NextSlabLane = WordsPerSlab - 1
)

// SlabIndex is an opaque handle into SlabAllocator. It never aliases a raw
// pointer; that is what makes a single compare-and-swap on a slot word a
// valid publication protocol.
type SlabIndex uint32

// PairIndex is an opaque handle into PairAllocator.
type PairIndex uint32

const (
	// EmptyPair is the reserved sentinel marking a pair slot unoccupied.
	EmptyPair PairIndex = 0xFFFFFFFF

	// EmptySlab is the reserved sentinel marking slot 31 as chain-terminal.
	EmptySlab SlabIndex = 0xFFFFFFFF

	// HeadSlab is never stored in a slot; it is reserved as the "currently
	// walking the bucket's head slab, not a heap slab" index. The walk in
	// internal/warp tracks that state with a boolean and does not use
	// this value.
	HeadSlab SlabIndex = 0xFFFFFFFE
)

// emptyWord is the all-ones bit pattern both sentinels above share. A
// memset to this pattern makes every pair slot EmptyPair and slot 31
// EmptySlab simultaneously, which is why zero-initialization of a slab is a
// single fill rather than two.
const emptyWord uint32 = 0xFFFFFFFF

// Slab is a fixed 32-word memory cell. Lane i addresses word i through
// Load/Store/CompareAndSwap; there is no other way to reach a slot, mirroring
// the no-raw-pointers addressing discipline the spec requires of every
// target language.
type Slab struct {
	words [WordsPerSlab]atomic.Uint32
}

// Reset fills every word with the all-ones empty sentinel. Used both at
// construction (BucketArray's head slabs) and immediately after a fresh
// slab is pulled from SlabAllocator, before any lane can observe it.
func (s *Slab) Reset() {
	for i := range s.words {
		s.words[i].Store(emptyWord)
	}
}

// Load reads the word at lane i.
func (s *Slab) Load(lane int) uint32 {
	return s.words[lane].Load()
}

// Store writes the word at lane i. Only used on slabs not yet reachable by
// any other warp (pre-publication writes).
func (s *Slab) Store(lane int, v uint32) {
	s.words[lane].Store(v)
}

// CompareAndSwap attempts the publication or removal CAS on lane i's word.
func (s *Slab) CompareAndSwap(lane int, old, new uint32) bool {
	return s.words[lane].CompareAndSwap(old, new)
}
