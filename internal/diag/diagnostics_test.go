package diag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/pairpool"
	"github.com/minio/slabhash/internal/slab"
	"github.com/minio/slabhash/internal/warp"
)

func hashMod(numBuckets int) func(int) uint32 {
	return func(k int) uint32 { return uint32(k) % uint32(numBuckets) }
}

func TestBucketOccupancyCountsLiveSlots(t *testing.T) {
	buckets := bucket.New(2)
	slabs := slab.New(32)
	pairs := pairpool.New[int, int](32)
	cursor := slabs.Init(1, 0)

	h := hashMod(2)
	warp.RunInsertWarp(buckets, slabs, pairs, h, cursor, []int{0, 1, 2, 3}, []int{0, 1, 2, 3})

	occ := BucketOccupancy(buckets, slabs)
	require.Len(t, occ, 2)
	require.Equal(t, 2, occ[0]) // keys 0, 2
	require.Equal(t, 2, occ[1]) // keys 1, 3
}

func TestLoadFactorZeroWhenEmpty(t *testing.T) {
	slabs := slab.New(32)
	lf := LoadFactor(4, slabs, 0, 8)
	require.Equal(t, 0.0, lf)
}

func TestLoadFactorIncreasesWithInserts(t *testing.T) {
	buckets := bucket.New(4)
	slabs := slab.New(32)
	pairs := pairpool.New[int, int](32)
	cursor := slabs.Init(1, 0)

	before := LoadFactor(buckets.Len(), slabs, pairs.Len(), 8)
	warp.RunInsertWarp(buckets, slabs, pairs, hashMod(4), cursor, []int{1, 2, 3}, []int{1, 2, 3})
	after := LoadFactor(buckets.Len(), slabs, pairs.Len(), 8)

	require.Greater(t, after, before)
}
