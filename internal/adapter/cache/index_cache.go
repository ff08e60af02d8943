package cache

import (
	"sync"
	"time"

	"docrag/internal/adapter/vectorindex"
	"docrag/internal/domain"
)

// IndexCache keeps the most recently loaded index in memory. An entry is
// served only while it is younger than the TTL and the caller still sees
// the same published generation.
type IndexCache struct {
	mu    sync.RWMutex
	entry *cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	index     *vectorindex.Flat
	meta      domain.IndexMetadata
	timestamp time.Time
}

func NewIndexCache(ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &IndexCache{ttl: ttl, now: time.Now}
}

func (c *IndexCache) Get(generation string) (*vectorindex.Flat, domain.IndexMetadata, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil || entry.meta.Generation != generation {
		return nil, domain.IndexMetadata{}, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl {
		c.mu.Lock()
		if c.entry == entry {
			c.entry = nil
		}
		c.mu.Unlock()
		return nil, domain.IndexMetadata{}, false
	}

	return entry.index, entry.meta, true
}

func (c *IndexCache) Put(index *vectorindex.Flat, meta domain.IndexMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &cacheEntry{index: index, meta: meta, timestamp: c.now()}
}

func (c *IndexCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
