package slabhash

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/minio/slabhash/internal/model"
)

func newTestTable(t *testing.T) *Table[string, int] {
	t.Helper()
	table, err := New[string, int](StringHash(0xA5A5), Config{
		NumBuckets:       16,
		MaxKeyValueCount: 4096,
	})
	require.NoError(t, err)
	return table
}

func TestInsertSearchRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	keys := []string{"alpha", "beta", "gamma"}
	values := []int{1, 2, 3}

	insertResults, err := table.Insert(ctx, keys, values)
	require.NoError(t, err)
	for i, r := range insertResults {
		require.True(t, r.Inserted, "key %s", keys[i])
		require.NoError(t, r.Err)
	}

	searchResults, err := table.Search(ctx, keys)
	require.NoError(t, err)
	for i, r := range searchResults {
		require.True(t, r.Found, "key %s", keys[i])
		require.Equal(t, values[i], r.Value)
	}

	removeResults, err := table.Remove(ctx, keys)
	require.NoError(t, err)
	for i, r := range removeResults {
		require.True(t, r.Removed, "key %s", keys[i])
	}

	searchAfterRemove, err := table.Search(ctx, keys)
	require.NoError(t, err)
	for _, r := range searchAfterRemove {
		require.False(t, r.Found)
	}
}

func TestInsertDuplicateKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	first, err := table.Insert(ctx, []string{"k"}, []int{1})
	require.NoError(t, err)
	require.True(t, first[0].Inserted)

	second, err := table.Insert(ctx, []string{"k"}, []int{2})
	require.NoError(t, err)
	require.False(t, second[0].Inserted)

	searchResults, err := table.Search(ctx, []string{"k"})
	require.NoError(t, err)
	require.Equal(t, 1, searchResults[0].Value)
}

func TestSearchAbsentKeyNotFound(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	results, err := table.Search(ctx, []string{"missing"})
	require.NoError(t, err)
	require.False(t, results[0].Found)
}

func TestRemoveAbsentKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	results, err := table.Remove(ctx, []string{"missing"})
	require.NoError(t, err)
	require.False(t, results[0].Removed)
}

func TestCloseRejectsFurtherCalls(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	require.NoError(t, table.Close(ctx))

	_, err := table.Insert(ctx, []string{"k"}, []int{1})
	require.ErrorIs(t, err, ErrClosed)

	_, err = table.Search(ctx, []string{"k"})
	require.ErrorIs(t, err, ErrClosed)

	_, err = table.Remove(ctx, []string{"k"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New[string, int](StringHash(0), Config{NumBuckets: 0, MaxKeyValueCount: 10})
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = New[string, int](StringHash(0), Config{NumBuckets: 10, MaxKeyValueCount: 0})
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = New[string, int](nil, Config{NumBuckets: 10, MaxKeyValueCount: 10})
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestEmptyBatchIsNoop(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	results, err := table.Insert(ctx, nil, nil)
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestComputeLoadFactorReflectsInserts(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)

	before, err := table.ComputeLoadFactor(ctx)
	require.NoError(t, err)
	require.Equal(t, 0.0, before)

	keys := make([]string, 50)
	values := make([]int, 50)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
		values[i] = i
	}
	_, err = table.Insert(ctx, keys, values)
	require.NoError(t, err)

	after, err := table.ComputeLoadFactor(ctx)
	require.NoError(t, err)
	require.Greater(t, after, before)
}

// TestMatchesModelAgainstRandomWorkload runs a randomized sequence of
// Insert/Search/Remove batches against both the real table and the
// in-memory model oracle, and checks every observable result agrees.
func TestMatchesModelAgainstRandomWorkload(t *testing.T) {
	ctx := context.Background()
	table := newTestTable(t)
	oracle := model.New[string, int]()

	rng := rand.New(rand.NewSource(7))
	universe := make([]string, 40)
	for i := range universe {
		universe[i] = fmt.Sprintf("u%d", i)
	}

	for round := 0; round < 50; round++ {
		batchSize := 1 + rng.Intn(8)
		keys := make([]string, batchSize)
		for i := range keys {
			keys[i] = universe[rng.Intn(len(universe))]
		}

		switch rng.Intn(3) {
		case 0:
			values := make([]int, batchSize)
			for i := range values {
				values[i] = rng.Intn(1000)
			}
			got, err := table.Insert(ctx, keys, values)
			require.NoError(t, err)
			want := oracle.Insert(keys, values)
			for i := range got {
				require.Equal(t, want[i].Inserted, got[i].Inserted, "round %d key %s", round, keys[i])
			}
		case 1:
			got, err := table.Search(ctx, keys)
			require.NoError(t, err)
			want := oracle.Search(keys)
			for i := range got {
				require.Equal(t, want[i].Found, got[i].Found, "round %d key %s", round, keys[i])
				if want[i].Found {
					require.Equal(t, want[i].Value, got[i].Value, "round %d key %s", round, keys[i])
				}
			}
		case 2:
			got, err := table.Remove(ctx, keys)
			require.NoError(t, err)
			want := oracle.Remove(keys)
			for i := range got {
				require.Equal(t, want[i].Removed, got[i].Removed, "round %d key %s", round, keys[i])
			}
		}
	}

	require.EqualValues(t, oracle.Len(), table.Len())

	finalSearch, err := table.Search(ctx, universe)
	require.NoError(t, err)
	tableSnapshot := make(map[string]int)
	for i, r := range finalSearch {
		if r.Found {
			tableSnapshot[universe[i]] = r.Value
		}
	}
	if diff := cmp.Diff(oracle.Snapshot(), tableSnapshot); diff != "" {
		t.Fatalf("table state diverged from model (-model +table):\n%s", diff)
	}
}
