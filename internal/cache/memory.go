package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/gdmt-audit-server/internal/domain"
)

// Stats are cache counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// MemoryCache is an in-process LRU with a maximum entry age.
type MemoryCache struct {
	lru        *expirable.LRU[string, cachedAudit]
	defaultTTL time.Duration
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewMemoryCache creates a cache holding at most size entries for at most ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryCache{
		lru:        expirable.NewLRU[string, cachedAudit](size, nil, ttl),
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// Get returns a cached audit.
func (c *MemoryCache) Get(_ context.Context, key string) (*domain.AuditResult, bool) {
	entry, ok := c.lru.Get(key)
	if ok && entry.expired(c.now()) {
		c.lru.Remove(key)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.Data, true
}

// Set stores an audit. A ttl longer than the cache's maximum age is capped by the LRU.
func (c *MemoryCache) Set(_ context.Context, key string, result *domain.AuditResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.lru.Add(key, cachedAudit{Data: result, CachedAt: now, ExpiresAt: now.Add(ttl)})
	return nil
}

// Delete removes an entry.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Purge removes every entry.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats returns the current counters.
func (c *MemoryCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}
