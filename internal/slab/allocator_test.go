package slab

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minio/slabhash/internal/proto"
)

func TestAllocatorRoundsUpToWholeBlocks(t *testing.T) {
	a := New(1)
	total, free := a.Stats()
	require.Equal(t, slabsPerBlock, total)
	require.Equal(t, slabsPerBlock, free)
}

func TestAllocateFreeUntouched(t *testing.T) {
	a := New(64)
	c := a.Init(1, 0)

	idx, err := a.Allocate(c)
	require.NoError(t, err)

	_, free := a.Stats()
	require.Equal(t, 63, free)

	a.FreeUntouched(idx)
	_, free = a.Stats()
	require.Equal(t, 64, free)
}

func TestAllocateExhaustion(t *testing.T) {
	a := New(32)
	c := a.Init(1, 0)

	for i := 0; i < 32; i++ {
		_, err := a.Allocate(c)
		require.NoError(t, err)
	}

	_, err := a.Allocate(c)
	require.ErrorIs(t, err, proto.ErrOutOfSlabs)
}

func TestAllocatedSlabIsReset(t *testing.T) {
	a := New(32)
	c := a.Init(1, 0)

	idx, err := a.Allocate(c)
	require.NoError(t, err)

	s := a.SlabAt(idx)
	for lane := 0; lane < proto.WordsPerSlab; lane++ {
		if lane == proto.NextSlabLane {
			require.Equal(t, uint32(proto.EmptySlab), s.Load(lane))
		} else {
			require.Equal(t, uint32(proto.EmptyPair), s.Load(lane))
		}
	}
}

// TestAllocateConcurrentNeverDoubleIssues exercises the bit-CAS scan under
// contention from many warps starting at different cursor offsets: the
// pool must hand out every slab exactly once before returning
// ErrOutOfSlabs.
func TestAllocateConcurrentNeverDoubleIssues(t *testing.T) {
	const total = 256
	a := New(total)

	var wg sync.WaitGroup
	results := make(chan proto.SlabIndex, total)
	for w := 0; w < total; w++ {
		wg.Add(1)
		warpID := uint32(w)
		go func() {
			defer wg.Done()
			c := a.Init(warpID, 0)
			idx, err := a.Allocate(c)
			require.NoError(t, err)
			results <- idx
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[proto.SlabIndex]bool, total)
	for idx := range results {
		require.False(t, seen[idx])
		seen[idx] = true
	}
	require.Len(t, seen, total)
}
