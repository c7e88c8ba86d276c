package analytics

import (
	"context"
	"log/slog"
	"time"

	"conti/internal/cache"
)

// CachedExecutor memoizes results by normalized plan. Writers to the
// ledger must call Purge.
type CachedExecutor struct {
	next  Runner
	cache *cache.ReadThrough[Result]
}

var (
	_ Runner       = (*CachedExecutor)(nil)
	_ cache.Purger = (*CachedExecutor)(nil)
)

// NewCachedExecutor wraps next with an LRU of the given size and TTL.
// The returned cache is exposed so a cache.Manager can expire it.
func NewCachedExecutor(next Runner, size int, ttl time.Duration) (*CachedExecutor, *cache.LRUCache[Result]) {
	lru := cache.NewLRUCache[Result](size, ttl)
	return &CachedExecutor{next: next, cache: cache.NewReadThrough[Result](lru)}, lru
}

func (c *CachedExecutor) Execute(ctx context.Context, plan QueryPlan) (Result, error) {
	key := plan.Key()
	res, hit, err := c.cache.Get(ctx, key, func(ctx context.Context) (Result, error) {
		return c.next.Execute(ctx, plan)
	})
	if err != nil {
		return Result{}, err
	}
	if hit {
		slog.DebugContext(ctx, "Analytics cache hit", "key", key)
	}
	return res, nil
}

func (c *CachedExecutor) Purge() {
	c.cache.Purge()
}

// Invalidate drops the cached result for one plan key.
func (c *CachedExecutor) Invalidate(key string) {
	c.cache.Invalidate(key)
}
