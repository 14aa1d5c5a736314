// Package slabhash is HostFacade: the bulk Insert/Search/Remove/
// ComputeLoadFactor entry points over a concurrent hash table that lives
// entirely in simulated "device" memory, manipulated by warps of 32
// cooperating lanes acting on one query at a time (spec.md).
//
// A physical GPU's warp-cooperative execution is reproduced the way
// spec.md 9 sanctions for a non-GPU target: one goroutine simulates one
// warp's 32 lanes sequentially through the protocol in internal/warp;
// concurrency across many warps is real Go concurrency, racing on the
// shared BucketArray and allocators through sync/atomic compare-and-swap.
package slabhash

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sirupsen/logrus"

	"github.com/minio/slabhash/internal/bucket"
	"github.com/minio/slabhash/internal/diag"
	"github.com/minio/slabhash/internal/pairpool"
	"github.com/minio/slabhash/internal/proto"
	"github.com/minio/slabhash/internal/slab"
	"github.com/minio/slabhash/internal/telemetry"
	"github.com/minio/slabhash/internal/warp"
)

// InsertResult is one lane's Insert outcome. PairIndex identifies either
// the newly published record or — when Inserted is false and Err is nil —
// the pre-existing record that made this key a duplicate (spec 4.4.2
// branch 1: Insert does not overwrite).
type InsertResult struct {
	PairIndex proto.PairIndex
	Inserted  bool
	Err       error
}

// SearchResult is one lane's Search outcome (spec 4.4.1 / 6).
type SearchResult[V any] struct {
	Value V
	Found bool
}

// RemoveResult is one lane's Remove outcome (spec 4.4.3 / 6).
type RemoveResult struct {
	Removed bool
}

// Table is HostFacade bound to one (K, V) pair type, backed by the
// index-addressed slab hash variant (spec 3's primary variant). Use
// PackedTable instead when both K and V are uint32-sized POD values and
// the packed 64-bit-CAS variant is preferable.
type Table[K comparable, V any] struct {
	cfg Config

	buckets *bucket.Array
	slabs   *slab.Allocator
	pairs   *pairpool.Allocator[K, V]
	hash    HashFunc[K]

	warpSeq atomic.Uint64
	sem     *semaphore.Weighted
	tracer  trace.Tracer
	closed  atomic.Bool

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Table. hash is the caller-supplied hash functor (spec
// 6); cfg.NumBuckets and cfg.MaxKeyValueCount must be positive, and
// cfg.DeviceIndex must be non-negative, or ErrInvariantViolation is
// returned — the only place this error can surface, per spec 7.
func New[K comparable, V any](hash HashFunc[K], cfg Config) (*Table[K, V], error) {
	if cfg.NumBuckets <= 0 || cfg.MaxKeyValueCount <= 0 || cfg.DeviceIndex < 0 || hash == nil {
		return nil, ErrInvariantViolation
	}
	cfg = cfg.withDefaults()

	t := &Table[K, V]{
		cfg:        cfg,
		buckets:    bucket.New(cfg.NumBuckets),
		slabs:      slab.New(cfg.MaxSlabCount),
		pairs:      pairpool.New[K, V](cfg.MaxKeyValueCount),
		hash:       hash,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrentWarps)),
		tracer:     telemetry.Tracer("table"),
		shutdownCh: make(chan struct{}),
	}
	return t, nil
}

// StartDiagnosticsLogger launches a background goroutine that logs
// ComputeLoadFactor at the given interval through cfg.Logger, grounded on
// the teacher's statsCollector ticker loop (cache_engine_v3.go). Optional —
// a Table works fully without ever calling this.
func (t *Table[K, V]) StartDiagnosticsLogger(ctx context.Context, interval time.Duration) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.shutdownCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				lf, err := t.ComputeLoadFactor(ctx)
				if err != nil {
					return
				}
				t.cfg.Logger.WithField("load_factor", lf).Info("slabhash: periodic diagnostics")
			}
		}
	}()
}

// Close marks the table closed, stops any running diagnostics logger, and
// waits for it to exit — mirroring the teacher's graceful
// V3CacheManager.Shutdown.
func (t *Table[K, V]) Close(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.shutdownCh)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports PairAllocator's current live-record count. Racy by nature —
// concurrent Insert/Remove calls may land before or after the
// snapshot — and intended for diagnostics only, matching the Non-goal of
// ordered host-side read access.
func (t *Table[K, V]) Len() int64 {
	return t.pairs.Len()
}

func (t *Table[K, V]) nextWarpID() uint32 {
	return uint32(t.warpSeq.Add(1))
}

// launchWarps partitions n items into ceil(n/32) chunks of at most 32 lanes and runs fn
// once per chunk as one simulated warp, bounded to cfg.MaxConcurrentWarps
// concurrent warps via a weighted semaphore — the Go analogue of grid
// occupancy, grounded on the teacher's worker-pool sizing.
func launchWarps(ctx context.Context, t interface {
	nextWarpID() uint32
}, sem *semaphore.Weighted, n int, fn func(warpID uint32, start, end int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += proto.LanesPerWarp {
		end := start + proto.LanesPerWarp
		if end > n {
			end = n
		}
		start, end := start, end
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		warpID := t.nextWarpID()
		g.Go(func() error {
			defer sem.Release(1)
			return fn(warpID, start, end)
		})
	}
	return g.Wait()
}

// Insert inserts each (keys[i], values[i]) if keys[i] is absent;
// no-op if already present (spec 4.4.2, 6). Best-effort under pool
// exhaustion — a failing lane does not affect any other lane in the
// batch (spec 7).
func (t *Table[K, V]) Insert(ctx context.Context, keys []K, values []V) ([]InsertResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) != len(values) {
		return nil, fmt.Errorf("slabhash: Insert: len(keys)=%d != len(values)=%d", len(keys), len(values))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.Insert",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]InsertResult, len(keys))
	err := launchWarps(ctx, t, t.sem, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		wctx, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.Insert.warp", warpSpan)
		defer wspan.End()

		cursor := t.slabs.Init(warpID, 0)
		outcomes := warp.RunInsertWarp(t.buckets, t.slabs, t.pairs, t.hash, cursor, keys[start:end], values[start:end])
		for i, o := range outcomes {
			results[start+i] = InsertResult{PairIndex: o.PairIndex, Inserted: o.Inserted, Err: o.Err}
			if o.Err != nil {
				telemetry.RecordWarpError(wctx, o.Err, warpSpan, i)
				t.cfg.Logger.WithFields(logrus.Fields{
					"warp_id": warpID,
					"lane":    i,
				}).WithError(o.Err).Warn("slabhash: insert lane failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Search looks up each key (spec 4.4.1, 6). Found entries carry the
// previously-inserted value; absent entries carry V's zero value.
func (t *Table[K, V]) Search(ctx context.Context, keys []K) ([]SearchResult[V], error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.Search",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]SearchResult[V], len(keys))
	err := launchWarps(ctx, t, t.sem, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		_, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.Search.warp", warpSpan)
		defer wspan.End()

		outcomes := warp.RunSearchWarp(t.buckets, t.slabs, t.pairs, t.hash, keys[start:end])
		for i, o := range outcomes {
			if o.Found {
				results[start+i] = SearchResult[V]{Value: t.pairs.Extract(o.PairIndex).Value, Found: true}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Remove removes each key if present; no-op otherwise (spec 4.4.3, 6).
// Idempotent on an absent key. Under heavy contention Remove of a present
// key can legitimately return false (spec 9's flagged caveat) if a
// concurrent Remove clears the exact same reference first.
func (t *Table[K, V]) Remove(ctx context.Context, keys []K) ([]RemoveResult, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.Remove",
		attribute.Int("batch_size", len(keys)),
		attribute.Int("device_index", t.cfg.DeviceIndex),
	)
	defer span.End()

	results := make([]RemoveResult, len(keys))
	err := launchWarps(ctx, t, t.sem, len(keys), func(warpID uint32, start, end int) error {
		warpSpan := telemetry.WarpSpan{WarpID: warpID, DeviceIndex: t.cfg.DeviceIndex, LaneCount: end - start}
		_, wspan := telemetry.StartWarpSpan(ctx, t.tracer, "slabhash.Remove.warp", warpSpan)
		defer wspan.End()

		outcomes := warp.RunRemoveWarp(t.buckets, t.slabs, t.pairs, t.hash, keys[start:end])
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

// ComputeLoadFactor reports bytes of live pair data divided by bytes of
// allocated slab storage (spec 4.6, 6).
func (t *Table[K, V]) ComputeLoadFactor(ctx context.Context) (float64, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	_, span := telemetry.StartSpan(ctx, t.tracer, "slabhash.ComputeLoadFactor")
	defer span.End()

	var k K
	var v V
	keyValueBytes := int(unsafe.Sizeof(k)) + int(unsafe.Sizeof(v))
	return diag.LoadFactor(t.buckets.Len(), t.slabs, t.pairs.Len(), keyValueBytes), nil
}

// BucketOccupancy exposes Diagnostics pass 1 directly, for tests and
// callers that want per-bucket counts rather than the aggregate load
// factor.
func (t *Table[K, V]) BucketOccupancy() []int {
	return diag.BucketOccupancy(t.buckets, t.slabs)
}
