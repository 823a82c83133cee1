package toolcache

import (
	"sync"
	"time"
)

const (
	// DefaultMaxSize is the default number of cached queries
	DefaultMaxSize = 500
	// DefaultTTL is the default time-to-live for cache entries
	DefaultTTL = 24 * time.Hour
)

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Evictions      int64   `json:"evictions"`
	Size           int     `json:"size"`
	MaxSize        int     `json:"max_size"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	HitRate        float64 `json:"hit_rate"`
}

// updateHitRate updates the hit rate calculation
func (s *CacheStats) updateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
}

// lruEntry represents a single cache entry in the LRU list
type lruEntry struct {
	key        string
	value      *CachedResult
	sizeBytes  int64
	prev, next *lruEntry
}

// LRUCache implements a thread-safe LRU cache of tool results
type LRUCache struct {
	maxSize    int
	size       int
	cache      map[string]*lruEntry
	head, tail *lruEntry
	mu         sync.Mutex
	stats      CacheStats
	now        func() time.Time
}

// NewLRUCache creates a new LRU cache with the given maximum size
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &LRUCache{
		maxSize: maxSize,
		cache:   make(map[string]*lruEntry),
		stats:   CacheStats{MaxSize: maxSize},
		now:     time.Now,
	}
}

// Get retrieves a value from the cache. The returned results are a copy.
func (c *LRUCache) Get(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.cache[key]
	if !exists {
		c.stats.Misses++
		c.stats.updateHitRate()
		return nil, false
	}

	if c.now().After(entry.value.ExpiresAt) {
		c.removeEntry(entry)
		c.stats.Misses++
		c.stats.updateHitRate()
		return nil, false
	}

	c.moveToFront(entry)
	entry.value.RecordAccess()

	c.stats.Hits++
	c.stats.updateHitRate()
	return append([]string(nil), entry.value.Results...), true
}

// Put stores a value in the cache
func (c *LRUCache) Put(key string, value *CachedResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value.SizeBytes == 0 {
		value.SizeBytes = value.EstimateSize()
	}

	if entry, exists := c.cache[key]; exists {
		c.stats.TotalSizeBytes += value.SizeBytes - entry.sizeBytes
		entry.value = value
		entry.sizeBytes = value.SizeBytes
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry{
		key:       key,
		value:     value,
		sizeBytes: value.SizeBytes,
	}

	c.cache[key] = entry
	c.addToFront(entry)
	c.size++
	c.stats.Size = c.size
	c.stats.TotalSizeBytes += entry.sizeBytes

	for c.size > c.maxSize {
		c.evictLRU()
	}
}

// Delete removes a value from the cache
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.cache[key]; exists {
		c.removeEntry(entry)
	}
}

// Clear removes all entries from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*lruEntry)
	c.head = nil
	c.tail = nil
	c.size = 0
	c.stats.Size = 0
	c.stats.TotalSizeBytes = 0
}

// Size returns the current number of entries in the cache
func (c *LRUCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a copy of the cache statistics
func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// CleanupExpired removes all expired entries from the cache
func (c *LRUCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var expired []*lruEntry
	for _, entry := range c.cache {
		if now.After(entry.value.ExpiresAt) {
			expired = append(expired, entry)
		}
	}

	for _, entry := range expired {
		c.removeEntry(entry)
		c.stats.Evictions++
	}

	return len(expired)
}

// moveToFront moves an entry to the front of the LRU list
func (c *LRUCache) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}
	c.removeEntryList(entry)
	c.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list
func (c *LRUCache) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

// removeEntry removes an entry from the cache and LRU list
func (c *LRUCache) removeEntry(entry *lruEntry) {
	delete(c.cache, entry.key)

	c.stats.TotalSizeBytes -= entry.sizeBytes
	c.size--
	c.stats.Size = c.size

	c.removeEntryList(entry)
}

// removeEntryList removes an entry from the LRU list only
func (c *LRUCache) removeEntryList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
	entry.prev = nil
	entry.next = nil
}

// evictLRU evicts the least recently used entry
func (c *LRUCache) evictLRU() {
	if c.tail == nil {
		return
	}
	c.removeEntry(c.tail)
	c.stats.Evictions++
}
