package cache

import (
	"sync"
	"time"
)

// CountCache holds the public waitlist count behind a short TTL. The count
// endpoint sits on the landing page and gets polled, the exact value a few
// seconds stale is fine.
type CountCache struct {
	mu        sync.RWMutex
	count     int
	fetchedAt time.Time
	ttl       time.Duration
}

func NewCountCache(ttl time.Duration) *CountCache {
	if ttl == 0 {
		ttl = 5 * time.Second
	}
	return &CountCache{ttl: ttl}
}

// Get returns the cached count and whether it is still fresh.
func (c *CountCache) Get() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() || time.Since(c.fetchedAt) > c.ttl {
		return 0, false
	}
	return c.count, true
}

// Set stores a freshly fetched count.
func (c *CountCache) Set(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = count
	c.fetchedAt = time.Now()
}
