// Package searchcache maps a query fingerprint to a cached result snapshot
// with a TTL and a bounded LRU, guaranteeing at most one concurrent build
// per fingerprint.
package searchcache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"grepwise/internal/logentry"
)

// Entry is one cached search result snapshot.
type Entry struct {
	Results   []logentry.LogEntry
	Total     int
	Warnings  []string
	CreatedAt time.Time
}

// BuildFunc computes a fresh Entry for a cache miss.
type BuildFunc func(ctx context.Context) (Entry, error)

// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, Entry]
	ttl   time.Duration
	sf    singleflight.Group
	nowFn func() time.Time
}

// New returns a Cache holding at most capacity entries, each valid for ttl
// after creation.
func New(capacity int, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1
	}
	l, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: ttl, nowFn: time.Now}, nil
}

// Get returns the cached Entry for fingerprint if present and unexpired;
// otherwise it calls build exactly once even under concurrent callers for
// the same fingerprint (singleflight), caches the result on success, and
// never caches a build failure.
func (c *Cache) Get(ctx context.Context, fingerprint string, build BuildFunc) (Entry, error) {
	if entry, ok := c.lookup(fingerprint); ok {
		return entry, nil
	}

	v, err, _ := c.sf.Do(fingerprint, func() (any, error) {
		entry, err := build(ctx)
		if err != nil {
			return Entry{}, err
		}
		entry.CreatedAt = c.nowFn()
		c.mu.Lock()
		c.lru.Add(fingerprint, entry)
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (c *Cache) lookup(fingerprint string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(fingerprint)
	if !ok {
		return Entry{}, false
	}
	if c.ttl > 0 && c.nowFn().Sub(entry.CreatedAt) > c.ttl {
		c.lru.Remove(fingerprint)
		return Entry{}, false
	}
	return entry, true
}

// Invalidate drops every cached entry. Called when a write affects a
// partition range broadly enough that per-fingerprint version bumping
// (handled by the caller via Fingerprint's versionCounter input) isn't
// granular enough, e.g. a bulk delete.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
