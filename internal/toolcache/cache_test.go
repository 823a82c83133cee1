package toolcache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache(10)

	t.Run("Put and Get", func(t *testing.T) {
		cache.Put("k1", NewCachedResult("k1", "search_quran", "mercy", []string{"2:255", "1:1"}, time.Hour))

		results, found := cache.Get("k1")
		if !found {
			t.Fatal("Expected to find value in cache")
		}
		if len(results) != 2 || results[0] != "2:255" || results[1] != "1:1" {
			t.Errorf("Expected results in insertion order, got %v", results)
		}
	})

	t.Run("Get returns a copy", func(t *testing.T) {
		results, _ := cache.Get("k1")
		results[0] = "mutated"

		again, _ := cache.Get("k1")
		if again[0] != "2:255" {
			t.Errorf("Expected cached results to be unaffected, got %v", again)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		if _, found := cache.Get("missing"); found {
			t.Error("Expected not to find non-existent key")
		}
	})

	t.Run("Delete key", func(t *testing.T) {
		cache.Put("k2", NewCachedResult("k2", "search_hadith", "q", []string{"x"}, time.Hour))
		cache.Delete("k2")

		if _, found := cache.Get("k2"); found {
			t.Error("Expected deleted key to not be found")
		}
	})

	t.Run("Update existing key", func(t *testing.T) {
		cache.Put("k3", NewCachedResult("k3", "t", "q", []string{"first"}, time.Hour))
		cache.Put("k3", NewCachedResult("k3", "t", "q", []string{"second"}, time.Hour))

		results, _ := cache.Get("k3")
		if results[0] != "second" {
			t.Errorf("Expected 'second', got '%s'", results[0])
		}
	})
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache(2)

	cache.Put("a", NewCachedResult("a", "t", "a", []string{"a"}, time.Hour))
	cache.Put("b", NewCachedResult("b", "t", "b", []string{"b"}, time.Hour))

	// Touch "a" so that "b" becomes the eviction candidate
	cache.Get("a")
	cache.Put("c", NewCachedResult("c", "t", "c", []string{"c"}, time.Hour))

	if _, found := cache.Get("b"); found {
		t.Error("Expected 'b' to be evicted")
	}
	if _, found := cache.Get("a"); !found {
		t.Error("Expected 'a' to survive")
	}
	if cache.Size() != 2 {
		t.Errorf("Expected size 2, got %d", cache.Size())
	}
	if cache.Stats().Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", cache.Stats().Evictions)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	cache := NewLRUCache(10)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("k", NewCachedResult("k", "t", "q", []string{"r"}, time.Minute))

	now = now.Add(2 * time.Minute)
	if _, found := cache.Get("k"); found {
		t.Error("Expected expired entry to miss")
	}
	if cache.Size() != 0 {
		t.Errorf("Expected expired entry to be removed, size %d", cache.Size())
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	cache := NewLRUCache(10)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put("short", NewCachedResult("short", "t", "q", nil, time.Minute))
	cache.Put("long", NewCachedResult("long", "t", "q", nil, time.Hour))

	now = now.Add(10 * time.Minute)
	if removed := cache.CleanupExpired(); removed != 1 {
		t.Errorf("Expected 1 removed entry, got %d", removed)
	}
	if cache.Size() != 1 {
		t.Errorf("Expected size 1, got %d", cache.Size())
	}
}

func TestLRUCache_Stats(t *testing.T) {
	cache := NewLRUCache(10)
	cache.Put("k", NewCachedResult("k", "t", "q", []string{"abc"}, time.Hour))

	cache.Get("k")
	cache.Get("missing")

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate)
	}
	if stats.TotalSizeBytes == 0 {
		t.Error("Expected size accounting to be non-zero")
	}

	cache.Clear()
	if cache.Size() != 0 || cache.Stats().TotalSizeBytes != 0 {
		t.Error("Expected Clear to reset size accounting")
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	cache := NewLRUCache(50)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k-%d-%d", n, j)
				cache.Put(key, NewCachedResult(key, "t", key, []string{key}, time.Hour))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Size() > 50 {
		t.Errorf("Expected size to stay within capacity, got %d", cache.Size())
	}
}

func TestGenerateCacheKey(t *testing.T) {
	tests := []struct {
		name  string
		toolA string
		qA    string
		toolB string
		qB    string
		same  bool
	}{
		{"identical", "search_quran", "mercy", "search_quran", "mercy", true},
		{"case and spacing", "search_quran", "  Mercy   of God", "search_quran", "mercy of god", true},
		{"different tool", "search_quran", "mercy", "search_hadith", "mercy", false},
		{"different query", "search_quran", "mercy", "search_quran", "patience", false},
		{"no boundary collision", "search_q", "uran mercy", "search_quran", " mercy", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := GenerateCacheKey(tt.toolA, tt.qA)
			b := GenerateCacheKey(tt.toolB, tt.qB)
			if (a == b) != tt.same {
				t.Errorf("Expected same=%v, got keys %s and %s", tt.same, a, b)
			}
			if len(a) != 64 {
				t.Errorf("Expected 64 hex chars, got %d", len(a))
			}
		})
	}
}
