package warp

import (
	"math/bits"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
)

// packedChainWalker is chainWalker's analogue for the 64-bit packed
// variant. Kept separate rather than made generic over slab width: the two
// variants' CAS calls take different argument types (uint32 vs uint64),
// and a shared walker would have to hide that behind an interface on the
// hot path this package exists to keep branch-free.
type packedChainWalker struct {
	buckets *bucket.PackedArray

	curIsHead bool
	curBucket uint32
	curSlab   *proto.PackedSlab
}

func newPackedChainWalker(buckets *bucket.PackedArray) *packedChainWalker {
	return &packedChainWalker{buckets: buckets}
}

func (w *packedChainWalker) resetToHead(bucketID uint32) {
	w.curIsHead = true
	w.curBucket = bucketID
	w.curSlab = nil
}

func (w *packedChainWalker) current() *proto.PackedSlab {
	if w.curIsHead {
		return w.buckets.Head(w.curBucket)
	}
	return w.curSlab
}

func (w *packedChainWalker) advance(next *proto.PackedSlab) {
	w.curIsHead = false
	w.curSlab = next
}

func readPackedWords(s *proto.PackedSlab) [proto.PackedWordsPerSlab]uint64 {
	var words [proto.PackedWordsPerSlab]uint64
	for lane := 0; lane < proto.PackedWordsPerSlab; lane++ {
		words[lane] = s.Load(lane)
	}
	return words
}

func findPackedKeyLane(words *[proto.PackedWordsPerSlab]uint64, key uint32) int {
	for lane := 0; lane < proto.NextSlabLane; lane++ {
		if words[lane] == proto.EmptyPairPacked {
			continue
		}
		k, _ := proto.UnpackKV(words[lane])
		if k == key {
			return lane
		}
	}
	return -1
}

func findPackedEmptyLane(words *[proto.PackedWordsPerSlab]uint64) int {
	for lane := 0; lane < proto.NextSlabLane; lane++ {
		if words[lane] == proto.EmptyPairPacked {
			return lane
		}
	}
	return -1
}

// PackedInsertOutcome is one lane's result for the packed variant: there is
// no PairAllocator index to hand back, since key and value are published
// inline in the slot.
type PackedInsertOutcome struct {
	Value     uint32
	Inserted  bool
	Duplicate bool
}

// RunPackedInsertWarp implements spec 4.4.2 for the packed variant: no
// pre-allocation step is needed (there is no separate PairAllocator call),
// so the only thing the pre-loop pass does is compute each lane's bucket.
func RunPackedInsertWarp(
	buckets *bucket.PackedArray,
	slabs *slab.PackedAllocator,
	hash func(uint32) uint32,
	cursor slab.Cursor,
	keys []uint32,
	values []uint32,
) []PackedInsertOutcome {
	n := len(keys)
	outcomes := make([]PackedInsertOutcome, n)
	active := make([]bool, n)
	bucketOf := make([]uint32, n)

	numBuckets := uint32(buckets.Len())
	for i := 0; i < n; i++ {
		bucketOf[i] = hash(keys[i]) % numBuckets
		active[i] = true
	}

	walker := newPackedChainWalker(buckets)
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
		words := readPackedWords(slabPtr)

		if dupLane := findPackedKeyLane(&words, keys[srcLane]); dupLane >= 0 {
			_, v := proto.UnpackKV(words[dupLane])
			outcomes[srcLane] = PackedInsertOutcome{Value: v, Duplicate: true}
			active[srcLane] = false
			prevMask = mask
			continue
		}

		if emptyLane := findPackedEmptyLane(&words); emptyLane >= 0 {
			packed := proto.PackKV(keys[srcLane], values[srcLane])
			if slabPtr.CompareAndSwap(emptyLane, proto.EmptyPairPacked, packed) {
				outcomes[srcLane] = PackedInsertOutcome{Value: values[srcLane], Inserted: true}
				active[srcLane] = false
			}
			prevMask = mask
			continue
		}

		next := words[proto.NextSlabLane]
		if next != proto.EmptySlabPacked {
			walker.advance(slabs.SlabAt(proto.SlabIndex(uint32(next))))
			prevMask = mask
			continue
		}

		newIdx, err := slabs.Allocate(cursor)
		if err != nil {
			outcomes[srcLane] = PackedInsertOutcome{}
			active[srcLane] = false
			prevMask = mask
			continue
		}
		if slabPtr.CompareAndSwap(proto.NextSlabLane, proto.EmptySlabPacked, uint64(newIdx)) {
			walker.advance(slabs.SlabAt(newIdx))
		} else {
			slabs.FreeUntouched(newIdx)
			winner := uint32(slabPtr.Load(proto.NextSlabLane))
			walker.advance(slabs.SlabAt(proto.SlabIndex(winner)))
		}
		prevMask = mask
	}

	return outcomes
}

// PackedSearchOutcome is one lane's Search result for the packed variant.
type PackedSearchOutcome struct {
	Value uint32
	Found bool
}

// RunPackedSearchWarp implements spec 4.4.1 for the packed variant.
func RunPackedSearchWarp(
	buckets *bucket.PackedArray,
	slabs *slab.PackedAllocator,
	hash func(uint32) uint32,
	keys []uint32,
) []PackedSearchOutcome {
	n := len(keys)
	outcomes := make([]PackedSearchOutcome, n)
	active := make([]bool, n)
	bucketOf := make([]uint32, n)

	numBuckets := uint32(buckets.Len())
	for i := 0; i < n; i++ {
		bucketOf[i] = hash(keys[i]) % numBuckets
		active[i] = true
	}

	walker := newPackedChainWalker(buckets)
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
		words := readPackedWords(slabPtr)

		if foundLane := findPackedKeyLane(&words, keys[srcLane]); foundLane >= 0 {
			_, v := proto.UnpackKV(words[foundLane])
			outcomes[srcLane] = PackedSearchOutcome{Value: v, Found: true}
			active[srcLane] = false
			prevMask = mask
			continue
		}

		next := words[proto.NextSlabLane]
		if next == proto.EmptySlabPacked {
			outcomes[srcLane] = PackedSearchOutcome{Found: false}
			active[srcLane] = false
			prevMask = mask
			continue
		}
		walker.advance(slabs.SlabAt(proto.SlabIndex(uint32(next))))
		prevMask = mask
	}

	return outcomes
}

// RunPackedRemoveWarp implements spec 4.4.3 for the packed variant. Removed
// reports whether this lane's own CAS cleared the slot.
func RunPackedRemoveWarp(
	buckets *bucket.PackedArray,
	slabs *slab.PackedAllocator,
	hash func(uint32) uint32,
	keys []uint32,
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

	walker := newPackedChainWalker(buckets)
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
		words := readPackedWords(slabPtr)

		if foundLane := findPackedKeyLane(&words, keys[srcLane]); foundLane >= 0 {
			observed := words[foundLane]
			won := slabPtr.CompareAndSwap(foundLane, observed, proto.EmptyPairPacked)
			outcomes[srcLane] = RemoveOutcome{Removed: won}
			active[srcLane] = false
			prevMask = mask
			continue
		}

		next := words[proto.NextSlabLane]
		if next == proto.EmptySlabPacked {
			outcomes[srcLane] = RemoveOutcome{Removed: false}
			active[srcLane] = false
			prevMask = mask
			continue
		}
		walker.advance(slabs.SlabAt(proto.SlabIndex(uint32(next))))
		prevMask = mask
	}

	return outcomes
}
