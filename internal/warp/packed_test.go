package warp

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/slab"
)

func identityHash32(k uint32) uint32 { return k }

func TestPackedInsertSearchRemove(t *testing.T) {
	buckets := bucket.NewPacked(4)
	slabs := slab.NewPacked(64)
	cursor := slabs.Init(1, 0)

	keys := []uint32{10, 20, 30}
	values := []uint32{100, 200, 300}

	insertOut := RunPackedInsertWarp(buckets, slabs, identityHash32, cursor, keys, values)
	for i, o := range insertOut {
		require.True(t, o.Inserted, "key %d", keys[i])
		require.False(t, o.Duplicate)
	}

	searchOut := RunPackedSearchWarp(buckets, slabs, identityHash32, keys)
	for i, o := range searchOut {
		require.True(t, o.Found)
		require.Equal(t, values[i], o.Value)
	}

	dup := RunPackedInsertWarp(buckets, slabs, identityHash32, cursor, []uint32{10}, []uint32{999})
	require.True(t, dup[0].Duplicate)
	require.False(t, dup[0].Inserted)
	require.Equal(t, uint32(100), dup[0].Value)

	removeOut := RunPackedRemoveWarp(buckets, slabs, identityHash32, []uint32{10})
	require.True(t, removeOut[0].Removed)

	searchAfterRemove := RunPackedSearchWarp(buckets, slabs, identityHash32, []uint32{10})
	require.False(t, searchAfterRemove[0].Found)
}

func TestPackedSearchMissingKey(t *testing.T) {
	buckets := bucket.NewPacked(4)
	slabs := slab.NewPacked(64)
	out := RunPackedSearchWarp(buckets, slabs, identityHash32, []uint32{777})
	require.False(t, out[0].Found)
}

// TestPackedInsertConcurrentWarpsSameKeyExactlyOneWins is
// TestInsertConcurrentWarpsSameKeyExactlyOneWins for the packed variant:
// every lane of every warp inserts the identical key, and exactly one must
// win while the rest report Duplicate.
func TestPackedInsertConcurrentWarpsSameKeyExactlyOneWins(t *testing.T) {
	buckets := bucket.NewPacked(1)
	slabs := slab.NewPacked(256)

	const warps = 20
	const lanesPerWarp = 8
	const key = uint32(42)

	var wg sync.WaitGroup
	var insertedCount atomic.Int32
	var duplicateCount atomic.Int32
	for w := 0; w < warps; w++ {
		wg.Add(1)
		warpID := uint32(w)
		go func() {
			defer wg.Done()
			cursor := slabs.Init(warpID, 0)
			keys := make([]uint32, lanesPerWarp)
			values := make([]uint32, lanesPerWarp)
			for i := 0; i < lanesPerWarp; i++ {
				keys[i] = key
				values[i] = warpID*lanesPerWarp + uint32(i)
			}
			out := RunPackedInsertWarp(buckets, slabs, identityHash32, cursor, keys, values)
			for _, o := range out {
				if o.Inserted {
					insertedCount.Add(1)
				}
				if o.Duplicate {
					duplicateCount.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, insertedCount.Load(), "exactly one lane across all warps should win the insert")
	require.EqualValues(t, warps*lanesPerWarp-1, duplicateCount.Load())

	searchOut := RunPackedSearchWarp(buckets, slabs, identityHash32, []uint32{key})
	require.True(t, searchOut[0].Found)
}
