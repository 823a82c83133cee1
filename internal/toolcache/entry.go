package toolcache

import (
	"time"
)

// CachedResult represents the cached output of one tool query
type CachedResult struct {
	Key         string    `json:"key"`          // Cache key (SHA256 hash)
	Tool        string    `json:"tool"`         // Tool that produced the results
	Query       string    `json:"query"`        // Normalized query
	Results     []string  `json:"results"`      // Ordered tool results
	CreatedAt   time.Time `json:"created_at"`   // When cached
	ExpiresAt   time.Time `json:"expires_at"`   // When entry expires
	SizeBytes   int64     `json:"size_bytes"`   // Approximate size in memory
	AccessCount int       `json:"access_count"` // Number of times accessed
}

// NewCachedResult builds an entry that expires ttl from now
func NewCachedResult(key, tool, query string, results []string, ttl time.Duration) *CachedResult {
	now := time.Now()
	return &CachedResult{
		Key:       key,
		Tool:      tool,
		Query:     query,
		Results:   append([]string(nil), results...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// EstimateSize calculates the approximate size of this entry in bytes
func (cr *CachedResult) EstimateSize() int64 {
	size := int64(len(cr.Key) + len(cr.Tool) + len(cr.Query))
	for _, r := range cr.Results {
		size += int64(len(r))
	}
	return size
}

// IsExpired checks if this cache entry has expired
func (cr *CachedResult) IsExpired() bool {
	return time.Now().After(cr.ExpiresAt)
}

// RecordAccess updates access metadata when this entry is accessed
func (cr *CachedResult) RecordAccess() {
	cr.AccessCount++
}
