package routing

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-client/internal/models"
)

// Cache is a tiny in-memory cache for resolved routes keyed by the
// endpoint pair. Resolve is idempotent, so caching is purely an
// optimization.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	line models.Polyline
	ts   time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lon(), a.Lat(), b.Lon(), b.Lat())
}

// Get returns the cached route and true if present and not expired.
func (c *Cache) Get(a, b models.Coord) (models.Polyline, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return nil, false
	}
	return e.line, true
}

// Set stores a resolved route.
func (c *Cache) Set(a, b models.Coord, line models.Polyline) {
	k := keyFor(a, b)
	c.mu.Lock()
	c.store[k] = cacheEntry{line: line, ts: time.Now()}
	c.mu.Unlock()
}
