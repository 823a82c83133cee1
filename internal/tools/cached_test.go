package tools

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/user/ansari/internal/config"
	"github.com/user/ansari/internal/toolcache"
)

func TestCachedTool_ServesRepeatQueries(t *testing.T) {
	inner := &stubTool{name: "search_quran", results: []string{"a", "b"}}
	cached := NewCachedTool(inner, toolcache.NewLRUCache(10), time.Hour)

	for i := 0; i < 3; i++ {
		results, err := cached.Run(context.Background(), "  Mercy ")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(results) != 2 || results[0] != "a" {
			t.Errorf("Unexpected results: %v", results)
		}
	}
	cached.Run(context.Background(), "mercy")

	if inner.calls != 1 {
		t.Errorf("Expected 1 underlying call, got %d", inner.calls)
	}
	if cached.Stats().Hits != 3 {
		t.Errorf("Expected 3 cache hits, got %d", cached.Stats().Hits)
	}
}

func TestCachedTool_CachesEmptyResults(t *testing.T) {
	inner := &stubTool{name: "search_quran", results: []string{}}
	cached := NewCachedTool(inner, toolcache.NewLRUCache(10), time.Hour)

	cached.Run(context.Background(), "q")
	results, err := cached.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results, got %v", results)
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 underlying call, got %d", inner.calls)
	}
}

func TestCachedTool_DoesNotCacheErrors(t *testing.T) {
	inner := &stubTool{name: "search_quran", err: errors.New("unavailable")}
	cached := NewCachedTool(inner, toolcache.NewLRUCache(10), time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := cached.Run(context.Background(), "q"); err == nil {
			t.Fatal("Expected error, got nil")
		}
	}
	if inner.calls != 2 {
		t.Errorf("Expected errors to bypass the cache, got %d calls", inner.calls)
	}
}

func TestCachedTool_KeysIncludeToolName(t *testing.T) {
	cache := toolcache.NewLRUCache(10)
	quran := NewCachedTool(&stubTool{name: "search_quran", results: []string{"ayah"}}, cache, time.Hour)
	hadith := NewCachedTool(&stubTool{name: "search_hadith", results: []string{"hadith"}}, cache, time.Hour)

	quran.Run(context.Background(), "q")
	results, _ := hadith.Run(context.Background(), "q")
	if len(results) != 1 || results[0] != "hadith" {
		t.Errorf("Expected tools sharing a cache not to collide, got %v", results)
	}
}

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(config.ToolsConfig{CacheEnabled: true, CacheMaxSize: 5}, nil)

	want := []string{"search_quran", "search_hadith", "search_mawsuah"}
	names := r.Names()
	if len(names) != len(want) {
		t.Fatalf("Expected %d tools, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected tool %d to be %s, got %s", i, want[i], names[i])
		}
	}

	tool, _ := r.Get("search_quran")
	if _, ok := tool.(*CachedTool); !ok {
		t.Errorf("Expected cached tool when caching is enabled, got %T", tool)
	}

	r = NewDefaultRegistry(config.ToolsConfig{}, nil)
	tool, _ = r.Get("search_quran")
	kt, ok := tool.(*KalematTool)
	if !ok {
		t.Fatalf("Expected bare tool when caching is disabled, got %T", tool)
	}
	if c, ok := kt.client.(*http.Client); !ok || c.Timeout != DefaultRequestTimeout {
		t.Errorf("Expected a client bounded by %v, got %#v", DefaultRequestTimeout, kt.client)
	}
}
