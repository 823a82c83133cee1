package toolcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateCacheKey derives the cache key of a tool query. Queries differing
// only in case or surrounding whitespace share a key.
func GenerateCacheKey(tool, query string) string {
	hash := sha256.New()
	hash.Write([]byte(tool))
	hash.Write([]byte{0})
	hash.Write([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(hash.Sum(nil))
}

// NormalizeQuery lowercases the query and collapses runs of whitespace
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
