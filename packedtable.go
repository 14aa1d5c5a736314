package slabhash

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/diag"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
	"github.com/minio/slabhash/internal/telemetry"
	"github.com/minio/slabhash/internal/warp"
)

// PackedInsertResult is PackedTable's Insert outcome: when Inserted or
// Duplicate is set, Value is the value now stored under the key, whether
// this call wrote it or a prior duplicate already held it. If the slab pool
// is exhausted both flags are false and Value is zero.
type PackedInsertResult struct {
	Value     uint32
	Inserted  bool
	Duplicate bool
}

// PackedSearchResult is PackedTable's Search outcome.
type PackedSearchResult struct {
	Value uint32
	Found bool
}

// PackedTable is the 64-bit packed variant of HostFacade (spec 3's
// "key+value inline in one CAS word" alternative), for uint32 keys and
// uint32 values where the extra indirection through PairAllocator buys
// nothing. It exposes the same bulk operations as Table but skips a
// pointer chase per lane on every hit.
type PackedTable struct {
	cfg Config

	buckets *bucket.PackedArray
	slabs   *slab.PackedAllocator
	hash    func(uint32) uint32

	warpSeq atomic.Uint64
	sem     *semaphore.Weighted
	tracer  trace.Tracer
	closed  atomic.Bool
}

// NewPacked constructs a PackedTable. hash defaults to Uint32Hash(cfg.Seed)
// when nil.
func NewPacked(hash func(uint32) uint32, cfg Config) (*PackedTable, error) {
	if cfg.NumBuckets <= 0 || cfg.MaxKeyValueCount <= 0 || cfg.DeviceIndex < 0 {
		return nil, ErrInvariantViolation
	}
	cfg = cfg.withDefaults()
	if hash == nil {
		hash = Uint32Hash(cfg.Seed)
	}

	t := &PackedTable{
		cfg:     cfg,
		buckets: bucket.NewPacked(cfg.NumBuckets),
		slabs:   slab.NewPacked(cfg.MaxSlabCount),
		hash:    hash,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentWarps)),
		tracer:  telemetry.Tracer("packedtable"),
	}
	return t, nil
}

// Close marks the table closed; subsequent bulk calls return ErrClosed.
func (t *PackedTable) Close(ctx context.Context) error {
	t.closed.Store(true)
	return nil
}

func (t *PackedTable) nextWarpID() uint32 {
	return uint32(t.warpSeq.Add(1))
}

func (t *PackedTable) launch(ctx context.Context, n int, fn func(warpID uint32, start, end int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += proto.LanesPerWarp {
		end := start + proto.LanesPerWarp
		if end > n {
			end = n
		}
		start, end := start, end
		if err := t.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		warpID := t.nextWarpID()
		g.Go(func() error {
			defer t.sem.Release(1)
			return fn(warpID, start, end)
		})
	}
	return g.Wait()
}

// Insert is Table.Insert for the packed variant (spec 4.4.2, 6).
func (t *PackedTable) Insert(ctx context.Context, keys, values []uint32) ([]PackedInsertResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) != len(values) {
		return nil, fmt.Errorf("slabhash: Insert: len(keys)=%d != len(values)=%d", len(keys), len(values))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.PackedInsert",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]PackedInsertResult, len(keys))
	err := t.launch(ctx, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		_, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.PackedInsert.warp", warpSpan)
		defer wspan.End()

		cursor := t.slabs.Init(warpID, 0)
		outcomes := warp.RunPackedInsertWarp(t.buckets, t.slabs, t.hash, cursor, keys[start:end], values[start:end])
		for i, o := range outcomes {
			results[start+i] = PackedInsertResult{Value: o.Value, Inserted: o.Inserted, Duplicate: o.Duplicate}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Search is Table.Search for the packed variant (spec 4.4.1, 6).
func (t *PackedTable) Search(ctx context.Context, keys []uint32) ([]PackedSearchResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.PackedSearch",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]PackedSearchResult, len(keys))
	err := t.launch(ctx, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		_, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.PackedSearch.warp", warpSpan)
		defer wspan.End()

		outcomes := warp.RunPackedSearchWarp(t.buckets, t.slabs, t.hash, keys[start:end])
		for i, o := range outcomes {
			results[start+i] = PackedSearchResult{Value: o.Value, Found: o.Found}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Remove is Table.Remove for the packed variant (spec 4.4.3, 6).
func (t *PackedTable) Remove(ctx context.Context, keys []uint32) ([]RemoveResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.PackedRemove",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]RemoveResult, len(keys))
	err := t.launch(ctx, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		_, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.PackedRemove.warp", warpSpan)
		defer wspan.End()

		outcomes := warp.RunPackedRemoveWarp(t.buckets, t.slabs, t.hash, keys[start:end])
		for i, o := range outcomes {
			results[start+i] = RemoveResult{Removed: o.Removed}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ComputeLoadFactor reports the packed variant's load factor: each slot
// holds exactly 8 bytes (one uint64) whether live or not, so this is
// simply live-slot count over total-slot count rather than Table's
// key/value-size-weighted version.
func (t *PackedTable) ComputeLoadFactor(ctx context.Context) (float64, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	_, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.PackedComputeLoadFactor")
	defer span.End()

	return diag.PackedLoadFactor(t.buckets, t.slabs), nil
}
