// Package warp implements WarpProtocol: the per-operation warp-cooperative
// state machine shared by Insert, Search, and Remove (spec 4.4's "warp-
// cooperative work sharing", WCWS).
//
// A physical warp is 32 SIMT lanes executing in lockstep; this package
// simulates that in software the way spec 9 sanctions — "groups of 32
// cooperating tasks sharing an explicit per-lane state vector and an
// explicit broadcast step" — by having a single goroutine own the lane
// state for one warp and step it through the WCWS loop alone. Lanes never
// truly race each other, matching lockstep; concurrency comes from many
// such goroutines (many warps) racing on the shared BucketArray and
// allocators through sync/atomic compare-and-swap, exactly as spec 5
// requires. "Ballot" and "shuffle" become plain slice reads over the lane
// vector; "popcount" is math/bits.OnesCount32.
package warp

import (
	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/proto"
)

// ballot returns the bitmask of lanes still marked active, the software
// equivalent of __ballot_sync.
func ballot(active []bool) uint32 {
	var mask uint32
	for i, a := range active {
		if a {
			mask |= uint32(1) << uint(i)
		}
	}
	return mask
}

// chainWalker tracks which slab the warp is currently reading: either the
// bucket's head (curIsHead) or a specific heap slab reached through a
// slot-31 next-pointer. Shared by Insert, Search, and Remove because the
// walk itself — not what each lane does once the words are in hand — is
// identical across all three operations (spec 4.4 steps 1-5 and 7).
type chainWalker struct {
	buckets *bucket.Array

	curIsHead bool
	curBucket uint32
	curSlab   *proto.Slab
}

func newChainWalker(buckets *bucket.Array) *chainWalker {
	return &chainWalker{buckets: buckets}
}

// resetToHead starts (or restarts) the walk at bucketID's head slab. Called
// whenever the serviced lane changes (prev_ballot != ballot).
func (w *chainWalker) resetToHead(bucketID uint32) {
	w.curIsHead = true
	w.curBucket = bucketID
	w.curSlab = nil
}

// current returns the slab the warp should read this iteration.
func (w *chainWalker) current() *proto.Slab {
	if w.curIsHead {
		return w.buckets.Head(w.curBucket)
	}
	return w.curSlab
}

// advance moves the walk onto a heap slab reached via slot 31.
func (w *chainWalker) advance(next *proto.Slab) {
	w.curIsHead = false
	w.curSlab = next
}

// readWords copies every lane's word out of the current slab. Every lane
// "reads one word of the current slab" every iteration regardless of which
// lane is being serviced (spec 4.4 step 5); in the single-goroutine
// simulation that is just a full 32-word snapshot.
func readWords(s *proto.Slab) [proto.WordsPerSlab]uint32 {
	var words [proto.WordsPerSlab]uint32
	for lane := 0; lane < proto.WordsPerSlab; lane++ {
		words[lane] = s.Load(lane)
	}
	return words
}

// findKeyLane scans pair slots 0..30 of words for a live slot referencing a
// PairRecord whose key equals want, per the keyEqual callback. Lane 31 is
// excluded, matching "Lane 31 is masked out of the key test." Returns -1 if
// no lane matches.
func findKeyLane(words *[proto.WordsPerSlab]uint32, keyEqual func(proto.PairIndex) bool) int {
	for lane := 0; lane < proto.NextSlabLane; lane++ {
		if words[lane] == uint32(proto.EmptyPair) {
			continue
		}
		if keyEqual(proto.PairIndex(words[lane])) {
			return lane
		}
	}
	return -1
}

// findEmptyLane returns the lowest-indexed empty pair slot among lanes
// 0..30, or -1 if the slab is full. This is the "deterministic first-fit
// ordering" tie-break spec 4.4.2 requires.
func findEmptyLane(words *[proto.WordsPerSlab]uint32) int {
	for lane := 0; lane < proto.NextSlabLane; lane++ {
		if words[lane] == uint32(proto.EmptyPair) {
			return lane
		}
	}
	return -1
}
