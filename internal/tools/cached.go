package tools

import (
	"context"
	"time"

	"github.com/user/ansari/internal/toolcache"
)

// CachedTool wraps a Tool with an in-memory result cache. Only successful
// runs are cached; an empty result list is a valid answer and is cached too.
type CachedTool struct {
	tool  Tool
	cache *toolcache.LRUCache
	ttl   time.Duration
}

// NewCachedTool creates a cached tool. The cache may be shared between tools
// since keys include the tool name.
func NewCachedTool(tool Tool, cache *toolcache.LRUCache, ttl time.Duration) *CachedTool {
	if ttl <= 0 {
		ttl = toolcache.DefaultTTL
	}
	return &CachedTool{
		tool:  tool,
		cache: cache,
		ttl:   ttl,
	}
}

func (c *CachedTool) Name() string {
	return c.tool.Name()
}

func (c *CachedTool) Description() string {
	return c.tool.Description()
}

func (c *CachedTool) Parameters() map[string]interface{} {
	return c.tool.Parameters()
}

// Run serves the query from cache or delegates to the wrapped tool
func (c *CachedTool) Run(ctx context.Context, query string) ([]string, error) {
	key := toolcache.GenerateCacheKey(c.tool.Name(), query)
	if results, found := c.cache.Get(key); found {
		return results, nil
	}

	results, err := c.tool.Run(ctx, query)
	if err != nil {
		return nil, err
	}

	c.cache.Put(key, toolcache.NewCachedResult(key, c.tool.Name(), toolcache.NormalizeQuery(query), results, c.ttl))
	return results, nil
}

// Stats returns the statistics of the underlying cache
func (c *CachedTool) Stats() toolcache.CacheStats {
	return c.cache.Stats()
}
