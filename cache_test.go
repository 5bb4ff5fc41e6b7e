package docquiz

import (
	"testing"
	"time"
)

func TestChunkCacheTTL(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewChunkCache(10, time.Minute, clock)

	cache.Set("k", []Chunk{{Content: "a"}})
	if _, ok := cache.Get("k"); !ok {
		t.Fatal("fresh entry should be present")
	}

	*now = now.Add(59 * time.Second)
	if _, ok := cache.Get("k"); !ok {
		t.Error("entry expired before its TTL")
	}

	*now = now.Add(2 * time.Second)
	if _, ok := cache.Get("k"); ok {
		t.Error("entry survived past its TTL")
	}
	if cache.Len() != 0 {
		t.Errorf("expired entry not removed, len = %d", cache.Len())
	}
}

func TestChunkCacheEvictsOldest(t *testing.T) {
	cache := NewChunkCache(2, time.Hour, nil)

	cache.Set("a", []Chunk{{Content: "a"}})
	cache.Set("b", []Chunk{{Content: "b"}})
	cache.Set("c", []Chunk{{Content: "c"}})

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Error("entry b should survive")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("entry c should survive")
	}
	if cache.Len() != 2 {
		t.Errorf("len = %d, want 2", cache.Len())
	}
}

func TestChunkCacheOverwriteRefreshesOrder(t *testing.T) {
	cache := NewChunkCache(2, time.Hour, nil)

	cache.Set("a", []Chunk{{Content: "a1"}})
	cache.Set("b", []Chunk{{Content: "b"}})
	cache.Set("a", []Chunk{{Content: "a2"}})
	cache.Set("c", []Chunk{{Content: "c"}})

	// "b" became the oldest after "a" was rewritten.
	if _, ok := cache.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	chunks, ok := cache.Get("a")
	if !ok || len(chunks) != 1 || chunks[0].Content != "a2" {
		t.Errorf("a = %v ok=%v, want rewritten value", chunks, ok)
	}
}

func TestChunkCacheInvalidate(t *testing.T) {
	cache := NewChunkCache(10, time.Hour, nil)
	cache.Set("k", []Chunk{{Content: "a"}})
	cache.Invalidate("k")
	if _, ok := cache.Get("k"); ok {
		t.Error("invalidated entry still present")
	}
	// Invalidating a missing key is a no-op.
	cache.Invalidate("missing")
}
