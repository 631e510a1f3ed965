package enrich

import (
	"sync"
	"time"

	"roadlog/services/sync/internal/session"
)

const (
	// DefaultCacheMaxEntries bounds the weather cache to the most recent
	// entries by creation time.
	DefaultCacheMaxEntries = 50
	// DefaultCacheMaxAge is the absolute lifetime of a cache entry.
	DefaultCacheMaxAge = 15 * 24 * time.Hour
)

// CacheEntry is one cached weather observation.
type CacheEntry struct {
	Point      session.Point
	ObservedAt time.Time
	Weather    session.Weather
	CreatedAt  time.Time
}

// Cache is a bounded, time-limited weather cache keyed by (location, time).
// Lookups match within a time and great-circle distance tolerance; the first
// match wins. Every Add runs a cleanup pass first.
type Cache struct {
	mu      sync.Mutex
	max     int
	maxAge  time.Duration
	entries []CacheEntry
	now     func() time.Time
}

func NewCache(max int, maxAge time.Duration) *Cache {
	if max <= 0 {
		max = DefaultCacheMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Cache{max: max, maxAge: maxAge, now: time.Now}
}

func (c *Cache) Find(p session.Point, at time.Time, timeTol time.Duration, distTolMeters float64) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, e := range c.entries {
		if now.Sub(e.CreatedAt) > c.maxAge {
			continue
		}
		dt := at.Sub(e.ObservedAt)
		if dt < 0 {
			dt = -dt
		}
		if dt > timeTol {
			continue
		}
		if session.HaversineKm(p, e.Point)*1000 > distTolMeters {
			continue
		}
		return e, true
	}
	return CacheEntry{}, false
}

func (c *Cache) Add(e CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	c.cleanupLocked()
	c.entries = append(c.entries, e)
	if len(c.entries) > c.max {
		c.entries = c.entries[len(c.entries)-c.max:]
	}
}

// Cleanup evicts expired entries and truncates to capacity, returning the
// number of entries removed. Also run periodically by the daemon.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.entries)
	c.cleanupLocked()
	return before - len(c.entries)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cleanupLocked assumes entries are ordered by creation time, which holds
// because Add is the only append path.
func (c *Cache) cleanupLocked() {
	now := c.now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if now.Sub(e.CreatedAt) <= c.maxAge {
			kept = append(kept, e)
		}
	}
	c.entries = kept
	if len(c.entries) > c.max {
		c.entries = c.entries[len(c.entries)-c.max:]
	}
}
