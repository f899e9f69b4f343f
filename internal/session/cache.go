package session

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/zeebo/xxh3"

	"github.com/OCharnyshevich/minecraft-chunks/internal/protocol"
	"github.com/OCharnyshevich/minecraft-chunks/pkg/chunk"
)

// cacheKey identifies a payload decoded under one context.
type cacheKey struct {
	sum      xxh3.Uint128
	mask     uint32
	groundUp bool
	dim      protocol.Dimension
}

func newCacheKey(data []byte, mask uint32, groundUp bool, dim protocol.Dimension) cacheKey {
	return cacheKey{sum: xxh3.Hash128(data), mask: mask, groundUp: groundUp, dim: dim}
}

type cacheEntry struct {
	c        *chunk.Chunk
	trailing int
}

// decodeCache is a bounded LRU of decoded chunks.
type decodeCache struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[cacheKey, *cacheEntry]
	limit   int
}

func newDecodeCache(limit int) *decodeCache {
	return &decodeCache{
		entries: orderedmap.NewOrderedMap[cacheKey, *cacheEntry](),
		limit:   limit,
	}
}

func (c *decodeCache) get(k cacheKey) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(k)
	if ok {
		c.entries.Delete(k)
		c.entries.Set(k, e)
	}
	return e, ok
}

func (c *decodeCache) put(k cacheKey, e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Delete(k)
	c.entries.Set(k, e)
	for c.entries.Len() > c.limit {
		c.entries.Delete(c.entries.Front().Key)
	}
}

func (c *decodeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *decodeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.NewOrderedMap[cacheKey, *cacheEntry]()
}
