package cache

import (
	"context"
	"time"

	"github.com/gdmt-audit-server/internal/domain"
)

// TieredCache reads through an in-process tier to a shared tier and backfills the first tier
// on a shared hit.
type TieredCache struct {
	memory *MemoryCache
	shared domain.AuditCache
}

// NewTieredCache combines the two tiers. shared may be nil.
func NewTieredCache(memory *MemoryCache, shared domain.AuditCache) *TieredCache {
	return &TieredCache{memory: memory, shared: shared}
}

// Get returns a cached audit from the first tier that has it.
func (c *TieredCache) Get(ctx context.Context, key string) (*domain.AuditResult, bool) {
	if res, ok := c.memory.Get(ctx, key); ok {
		return res, true
	}
	if c.shared == nil {
		return nil, false
	}
	res, ok := c.shared.Get(ctx, key)
	if ok {
		_ = c.memory.Set(ctx, key, res, 0)
	}
	return res, ok
}

// Set writes both tiers. The shared tier's error is returned after the memory tier is written.
func (c *TieredCache) Set(ctx context.Context, key string, result *domain.AuditResult, ttl time.Duration) error {
	_ = c.memory.Set(ctx, key, result, ttl)
	if c.shared == nil {
		return nil
	}
	return c.shared.Set(ctx, key, result, ttl)
}

// Delete removes the entry from both tiers.
func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.memory.Delete(ctx, key)
	if c.shared == nil {
		return nil
	}
	return c.shared.Delete(ctx, key)
}
