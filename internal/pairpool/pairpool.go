// Package pairpool implements PairAllocator: a fixed-capacity, index-
// addressed pool of (key, value) records with free-list semantics. Each
// lane calls directly — no warp coordination is required — so the pool is
// a lock-free Treiber stack of free indices, the same compare-and-swap
// retry idiom the teacher uses for its LockFreeRingBuffer
// (internal/cache/cache_engine_v3.go Push/Pop), applied to a freelist
// instead of a ring.
//
// The stack top is tagged with a generation counter packed into the same
// word as the index, the same way proto.PackKV packs a key and a value
// into one CAS target. A bare top-of-stack index is vulnerable to ABA: a
// delayed Allocate can observe top=X, get preempted while other goroutines
// drain X and Y and free X back on top, and then its stale CAS(X, next[X])
// succeeds anyway because top reads as X again — handing Y out twice. The
// generation changes on every push and pop, so a stale top word never
// matches the live one even when the index it encodes happens to recur.
package pairpool

import (
	"sync/atomic"

	"github.com/minio/slabhash/internal/proto"
)

// noFree marks the bottom of the free-list stack: no index is chained
// after it. Distinct from proto.EmptyPair, which is a slot-word sentinel,
// not a freelist bookkeeping value.
const noFree = ^uint32(0)

// packTop combines a free-list top index and its generation into one CAS
// word: generation in the high 32 bits, index in the low 32, mirroring
// proto.PackKV's key-high/value-low layout.
func packTop(generation, idx uint32) uint64 {
	return uint64(generation)<<32 | uint64(idx)
}

// unpackTop reverses packTop.
func unpackTop(word uint64) (generation, idx uint32) {
	return uint32(word >> 32), uint32(word)
}

// Record is a single (key, value) slot. Its address is reachable in
// constant time from a proto.PairIndex via Extract.
type Record[K comparable, V any] struct {
	Key   K
	Value V
}

// Allocator is PairAllocator: a fixed array of Record sized at
// construction, addressed by index so that a pointer to a record fits in
// one 32-bit slot word.
type Allocator[K comparable, V any] struct {
	records []Record[K, V]
	next    []atomic.Uint32
	freeTop atomic.Uint64
	live    atomic.Int64
}

// New builds a pool with room for exactly capacity live records.
func New[K comparable, V any](capacity int) *Allocator[K, V] {
	a := &Allocator[K, V]{
		records: make([]Record[K, V], capacity),
		next:    make([]atomic.Uint32, capacity),
	}
	for i := 0; i < capacity; i++ {
		if i == capacity-1 {
			a.next[i].Store(noFree)
		} else {
			a.next[i].Store(uint32(i + 1))
		}
	}
	if capacity > 0 {
		a.freeTop.Store(packTop(0, 0))
	} else {
		a.freeTop.Store(packTop(0, noFree))
	}
	return a
}

// Allocate pops a free index off the stack. Thread-local: no warp
// coordination, any lane of any warp may call this concurrently.
func (a *Allocator[K, V]) Allocate() (proto.PairIndex, error) {
	for {
		top := a.freeTop.Load()
		generation, idx := unpackTop(top)
		if idx == noFree {
			return 0, proto.ErrOutOfPairs
		}
		nxt := a.next[idx].Load()
		if a.freeTop.CompareAndSwap(top, packTop(generation+1, nxt)) {
			a.live.Add(1)
			return proto.PairIndex(idx), nil
		}
	}
}

// Free pushes idx back onto the free stack. The caller must hold the sole
// live reference to idx (spec invariant 5); freeing an index still
// referenced by a live slot breaks the no-duplicates invariant.
func (a *Allocator[K, V]) Free(idx proto.PairIndex) {
	i := uint32(idx)
	for {
		top := a.freeTop.Load()
		generation, curTop := unpackTop(top)
		a.next[i].Store(curTop)
		if a.freeTop.CompareAndSwap(top, packTop(generation+1, i)) {
			a.live.Add(-1)
			return
		}
	}
}

// Extract returns the writable record for idx in constant time.
func (a *Allocator[K, V]) Extract(idx proto.PairIndex) *Record[K, V] {
	return &a.records[idx]
}

// Len reports the current live record count. Racy by nature — concurrent
// Allocate/Free calls may land before or after the snapshot — and intended
// for diagnostics only (spec 4.6), never for correctness decisions.
func (a *Allocator[K, V]) Len() int64 {
	return a.live.Load()
}

// Cap reports max_keyvalue_count, the pool's fixed capacity.
func (a *Allocator[K, V]) Cap() int {
	return len(a.records)
}
