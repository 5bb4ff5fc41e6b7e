package docquiz

import (
	"sync"
	"time"
)

// ChunkCache is an explicit TTL+size cache for retrieved chunk sets.
// The clock is injectable so tests control time; there is no hidden
// module-level singleton.
type ChunkCache struct {
	mu         sync.Mutex
	entries    map[string]chunkCacheEntry
	order      []string // insertion order, oldest first
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type chunkCacheEntry struct {
	chunks    []Chunk
	expiresAt time.Time
}

// NewChunkCache creates a cache holding at most maxEntries sets, each
// valid for ttl. A nil clock defaults to time.Now.
func NewChunkCache(maxEntries int, ttl time.Duration, clock func() time.Time) *ChunkCache {
	if clock == nil {
		clock = time.Now
	}
	return &ChunkCache{
		entries:    make(map[string]chunkCacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        clock,
	}
}

// Get returns the cached chunk set for key if present and unexpired.
func (c *ChunkCache) Get(key string) ([]Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeLocked(key)
		return nil, false
	}
	return entry.chunks, true
}

// Set stores a chunk set, evicting the oldest entry when full.
func (c *ChunkCache) Set(key string, chunks []Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeLocked(key)
	}
	for c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.removeLocked(c.order[0])
	}

	c.entries[key] = chunkCacheEntry{
		chunks:    chunks,
		expiresAt: c.now().Add(c.ttl),
	}
	c.order = append(c.order, key)
}

// Invalidate drops one key, e.g. after a document re-ingest.
func (c *ChunkCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Len reports the number of live entries (expired ones included until
// next access).
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ChunkCache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
