// Package model provides a deliberately simple, in-memory state model of
// a table's publicly observable behavior, for comparison against the real
// warp-protocol implementation in property-based tests.
//
// The model favors clarity over performance: it is a plain Go map, with no
// notion of buckets, slabs, or chains. Its only job is to say what the
// correct answer to a batch of Insert/Search/Remove calls is.
package model

// Table is the map-based oracle for one (K, V) pair type.
type Table[K comparable, V any] struct {
	entries map[K]V
}

// New returns an empty model.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{entries: make(map[K]V)}
}

// InsertResult mirrors the shape of the real Table's per-key Insert
// outcome, minus the PairIndex and Err fields the model has no equivalent
// for.
type InsertResult struct {
	Inserted bool
}

// Insert applies spec 4.4.2's semantics: first writer for a key wins,
// later writers for the same key in the same batch are no-ops against
// whatever the first writer wrote, exactly like two concurrent warps
// racing to claim the same empty slot.
func (t *Table[K, V]) Insert(keys []K, values []V) []InsertResult {
	results := make([]InsertResult, len(keys))
	for i, k := range keys {
		if _, exists := t.entries[k]; exists {
			results[i] = InsertResult{Inserted: false}
			continue
		}
		t.entries[k] = values[i]
		results[i] = InsertResult{Inserted: true}
	}
	return results
}

// SearchResult mirrors Table's Search outcome.
type SearchResult[V any] struct {
	Value V
	Found bool
}

// Search reports the model's current value for each key.
func (t *Table[K, V]) Search(keys []K) []SearchResult[V] {
	results := make([]SearchResult[V], len(keys))
	for i, k := range keys {
		v, ok := t.entries[k]
		results[i] = SearchResult[V]{Value: v, Found: ok}
	}
	return results
}

// RemoveResult mirrors Table's Remove outcome.
type RemoveResult struct {
	Removed bool
}

// Remove deletes each present key. The model has no contention to race
// against, so unlike the real table a present key always reports Removed.
func (t *Table[K, V]) Remove(keys []K) []RemoveResult {
	results := make([]RemoveResult, len(keys))
	for i, k := range keys {
		if _, ok := t.entries[k]; ok {
			delete(t.entries, k)
			results[i] = RemoveResult{Removed: true}
		}
	}
	return results
}

// Len reports the model's live entry count.
func (t *Table[K, V]) Len() int {
	return len(t.entries)
}

// Snapshot returns a defensive copy of the model's entries, for tests that
// want to compare the whole map rather than key-by-key.
func (t *Table[K, V]) Snapshot() map[K]V {
	out := make(map[K]V, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}
