// Package blobcache keeps recently loaded attachment payloads in memory
// so repeated reads of the same attachment skip the database. Entries are
// evicted oldest-first once the byte budget is exceeded.
package blobcache

import (
	"sync"
)

// DefaultMaxBytes is the byte budget used when New is given a
// non-positive one.
const DefaultMaxBytes = 32 << 20

// Cache is a bounded in-memory map from attachment ID to payload.
// Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	max   int64
	size  int64
	blobs map[string][]byte
	order []string
}

// New creates an empty cache holding at most maxBytes of payload data.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		max:   maxBytes,
		blobs: make(map[string][]byte),
	}
}

// Put stores a payload under id, evicting the oldest entries until the
// cache fits its budget again. The cache keeps the slice it is given.
// Payloads larger than the whole budget are not cached.
func (c *Cache) Put(id string, data []byte) {
	if id == "" || len(data) == 0 || int64(len(data)) > c.max {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.blobs[id]; ok {
		c.size -= int64(len(old))
		c.dropFromOrder(id)
	}
	c.blobs[id] = data
	c.order = append(c.order, id)
	c.size += int64(len(data))

	for c.size > c.max && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		c.size -= int64(len(c.blobs[oldest]))
		delete(c.blobs, oldest)
	}
}

// Get returns the cached payload for id, or nil when it is not cached.
// Callers must not modify the returned slice.
func (c *Cache) Get(id string) []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blobs[id]
}

// Contains reports whether id is cached.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.blobs[id]
	return ok
}

// Remove drops the payload for id if present.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.blobs[id]
	if !ok {
		return
	}
	c.size -= int64(len(data))
	delete(c.blobs, id)
	c.dropFromOrder(id)
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.blobs)
}

// Size returns the total cached payload bytes.
func (c *Cache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}

// Clear removes every payload.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blobs = make(map[string][]byte)
	c.order = nil
	c.size = 0
}

// dropFromOrder removes id from the eviction queue. Caller holds the
// write lock.
func (c *Cache) dropFromOrder(id string) {
	for i, candidate := range c.order {
		if candidate == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
