// Package assetcache is a disk-backed LRU cache for fetched binary assets
// (exercise images, avatars) with combined size- and age-based eviction.
//
// Eviction uses a 90%/75% hysteresis band: nothing is evicted until total
// size reaches 90% of the budget, then entries are deleted oldest-accessed
// first until the total is back under 75%. This avoids evicting on every
// single write once the cache sits near its limit.
package assetcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultFreshness is how long a cached asset is served without refetch.
	DefaultFreshness = 24 * time.Hour

	evictTriggerPct = 0.90
	evictTargetPct  = 0.75
)

// Fetcher obtains the asset bytes for a URL on a cache miss.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// Config tunes the cache. Zero Freshness takes DefaultFreshness.
type Config struct {
	Dir       string
	Budget    int64 // max total bytes on disk
	Freshness time.Duration
}

type entry struct {
	key          string
	path         string
	size         int64
	fetchedAt    time.Time // drives freshness: when the bytes were written
	lastAccessed time.Time // drives eviction order only
}

// Cache is a bounded disk cache. Safe for concurrent use.
type Cache struct {
	dir    string
	budget int64
	fresh  time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	total   int64
}

// Open creates the cache directory if needed and rebuilds the in-memory
// index from files already on disk (file mtime seeds last-accessed).
func Open(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("asset cache: dir is required")
	}
	if cfg.Budget <= 0 {
		return nil, fmt.Errorf("asset cache: budget must be positive")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("asset cache: create dir: %w", err)
	}

	c := &Cache{
		dir:     cfg.Dir,
		budget:  cfg.Budget,
		fresh:   cfg.Freshness,
		entries: make(map[string]*entry),
	}

	files, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("asset cache: read dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) == ".tmp" {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		e := &entry{
			key:          f.Name(),
			path:         filepath.Join(cfg.Dir, f.Name()),
			size:         info.Size(),
			fetchedAt:    info.ModTime(),
			lastAccessed: info.ModTime(),
		}
		c.entries[e.key] = e
		c.total += e.size
	}

	return c, nil
}

// Key derives the cache key for a URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:24]
}

// Get returns a local path for the asset at url.
//
// A fresh hit returns the cached path and touches its access time. A miss
// fetches, writes to disk, and returns the new path; a failed fetch leaves
// no partial file and returns the remote url itself as the usable fallback,
// with the error. A stale hit attempts a refresh but degrades to the stale
// file when the refresh fails - the caller never receives a broken local
// reference.
func (c *Cache) Get(ctx context.Context, url string, fetch Fetcher) (string, error) {
	key := Key(url)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && time.Since(e.fetchedAt) < c.fresh {
		// Reads extend the entry's LRU life, never its freshness: a
		// frequently accessed asset still goes stale and gets refetched.
		e.lastAccessed = time.Now()
		path := e.path
		c.mu.Unlock()
		return path, nil
	}
	var stalePath string
	if ok {
		stalePath = e.path
	}
	c.mu.Unlock()

	data, err := fetch(ctx, url)
	if err != nil {
		if stalePath != "" {
			slog.Warn("asset refresh failed, serving stale copy", "url", url, "error", err)
			return stalePath, nil
		}
		return url, fmt.Errorf("fetch asset %s: %w", url, err)
	}

	path, err := c.put(key, data)
	if err != nil {
		if stalePath != "" {
			return stalePath, nil
		}
		return url, err
	}
	return path, nil
}

// put writes the asset and updates bookkeeping, enforcing the size budget
// around the write.
func (c *Cache) put(key string, data []byte) (string, error) {
	c.mu.Lock()
	c.enforceLocked()
	c.mu.Unlock()

	path := filepath.Join(c.dir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp) // no partial files
		return "", fmt.Errorf("write asset %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write asset %s: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		c.total -= old.size
	}
	now := time.Now()
	e := &entry{key: key, path: path, size: int64(len(data)), fetchedAt: now, lastAccessed: now}
	c.entries[key] = e
	c.total += e.size
	c.enforceLocked()
	return path, nil
}

// EnforceSizeLimit applies the hysteresis eviction pass immediately.
// Returns the number of entries evicted.
func (c *Cache) EnforceSizeLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enforceLocked()
}

// enforceLocked evicts oldest-accessed entries while the total is above the
// trigger threshold, down to the target threshold. Callers must hold c.mu.
func (c *Cache) enforceLocked() int {
	trigger := int64(float64(c.budget) * evictTriggerPct)
	if c.total < trigger {
		return 0
	}
	target := int64(float64(c.budget) * evictTargetPct)

	byAge := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].lastAccessed.Before(byAge[j].lastAccessed)
	})

	evicted := 0
	for _, e := range byAge {
		if c.total <= target {
			break
		}
		c.removeLocked(e)
		evicted++
	}
	if evicted > 0 {
		slog.Debug("asset cache evicted entries", "evicted", evicted, "total_bytes", c.total)
	}
	return evicted
}

// ClearOld deletes entries whose last access is older than maxAge,
// regardless of size pressure. Returns the number removed.
func (c *Cache) ClearOld(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range c.entries {
		if e.lastAccessed.Before(cutoff) {
			c.removeLocked(e)
			removed++
		}
	}
	return removed
}

// removeLocked drops an entry and deletes its file. Deleting a file that is
// already gone counts as success (idempotent eviction).
func (c *Cache) removeLocked(e *entry) {
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("asset cache delete failed", "path", e.path, "error", err)
	}
	delete(c.entries, e.key)
	c.total -= e.size
}

// TotalSize returns the tracked total bytes on disk.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
