// Package relevance scores paragraphs against a document topic by cosine
// similarity of embeddings, with content-hash keyed caching.
package relevance

import (
	"container/list"
	"sync"
)

// vectorCache is an LRU cache of embeddings keyed by content hash. Entries
// are immutable once inserted: edited text hashes to a new key, so a hit is
// always numerically identical to a fresh computation for the same input.
type vectorCache struct {
	capacity int
	cache    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	key   string
	value []float32
}

func newVectorCache(capacity int) *vectorCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &vectorCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// get returns the cached vector for key and marks it most recently used.
func (c *vectorCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).value, true
	}
	return nil, false
}

// set stores the vector for key, evicting the least recently used entry when
// over capacity. Existing keys are only refreshed in recency; the stored
// vector is never replaced.
func (c *vectorCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.MoveToFront(elem)
		return
	}

	entry := &cacheEntry{key: key, value: value}
	elem := c.lru.PushFront(entry)
	c.cache[key] = elem

	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// remove drops key from the cache if present.
func (c *vectorCache) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		c.lru.Remove(elem)
		delete(c.cache, key)
	}
}

// len returns the number of cached entries.
func (c *vectorCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
