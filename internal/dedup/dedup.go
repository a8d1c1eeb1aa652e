// Package dedup holds the known-event filter: a bounded in-memory recency
// index that lets the ingest pipeline reject obviously-duplicate events
// without a store round trip.
//
// The filter is purely an optimization. It is not durable and a false
// negative (a forgotten id that is actually stored) is safe - the store's
// skip-if-exists check remains authoritative.
package dedup

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the filter when no capacity is configured.
const DefaultCapacity = 4096

// Filter maps event id to the newest created-at timestamp seen for it,
// bounded to the most-recently-touched entries.
type Filter struct {
	cache *lru.Cache[string, int64]
}

// New creates a filter bounded to capacity entries.
// A capacity <= 0 falls back to DefaultCapacity.
func New(capacity int) *Filter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only errors on size <= 0, which is excluded above.
	cache, _ := lru.New[string, int64](capacity)
	return &Filter{cache: cache}
}

// ShouldSkip reports whether an incoming event can be dropped: the filter
// already holds an equal-or-newer created-at for the id.
func (f *Filter) ShouldSkip(eventID string, createdAt int64) bool {
	seen, ok := f.cache.Get(eventID)
	return ok && seen >= createdAt
}

// Record remembers an event id and its created-at. An older timestamp never
// overwrites a newer one already held for the id.
func (f *Filter) Record(eventID string, createdAt int64) {
	if seen, ok := f.cache.Get(eventID); ok && seen >= createdAt {
		return
	}
	f.cache.Add(eventID, createdAt)
}

// Len returns the number of entries currently held.
func (f *Filter) Len() int {
	return f.cache.Len()
}
