package proto

import "sync/atomic"

// PackedWordsPerSlab mirrors WordsPerSlab: the packed variant preserves the
// 32-word, 32-lane layout, only each word widens to 64 bits so a (key,
// value) pair for small POD types publishes in a single CAS (spec 3, 9).
const PackedWordsPerSlab = WordsPerSlab

// emptyPackedWord is the all-ones 64-bit pattern. Packing key 0xFFFFFFFF
// with value 0xFFFFFFFF reproduces it exactly, so EmptyPairPacked below is
// indistinguishable from "never written" — the same zero-initialization
// trick the index-addressed variant relies on.
const emptyPackedWord uint64 = 0xFFFFFFFFFFFFFFFF

// EmptyPairPacked is the packed-variant sentinel for an unoccupied pair
// slot: both key and value packed as all-ones.
const EmptyPairPacked uint64 = emptyPackedWord

// EmptySlabPacked is the packed-variant sentinel for slot 31's next-slab
// pointer; the low 32 bits are the real SlabIndex when occupied.
const EmptySlabPacked uint64 = emptyPackedWord

// PackKV packs a key/value pair into one 64-bit CAS-able word.
func PackKV(key, value uint32) uint64 {
	return uint64(key)<<32 | uint64(value)
}

// UnpackKV reverses PackKV.
func UnpackKV(word uint64) (key, value uint32) {
	return uint32(word >> 32), uint32(word)
}

// PackedSlab is the packed variant's 32-word memory cell, each word 64
// bits wide.
type PackedSlab struct {
	words [PackedWordsPerSlab]atomic.Uint64
}

// Reset fills every word with the all-ones empty pattern.
func (s *PackedSlab) Reset() {
	for i := range s.words {
		s.words[i].Store(emptyPackedWord)
	}
}

func (s *PackedSlab) Load(lane int) uint64 { return s.words[lane].Load() }

func (s *PackedSlab) Store(lane int, v uint64) { s.words[lane].Store(v) }

func (s *PackedSlab) CompareAndSwap(lane int, old, new uint64) bool {
	return s.words[lane].CompareAndSwap(old, new)
}
