package cache

import (
	"sync"
)

// Cache holds encoded prediction responses keyed by image URL. Every Reset
// starts a new generation; writes tagged with an older one are dropped.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string][]byte
	generation uint64
}

func New() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.entries[key]
	return data, ok
}

func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
}

// Generation identifies the current cache contents. Read it before computing
// a value and pass it to SetIfCurrent.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetIfCurrent stores data only if no Reset happened since generation was
// read. It reports whether the entry was stored.
func (c *Cache) SetIfCurrent(generation uint64, key string, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.entries[key] = data
	return true
}

// Reset drops every entry. Called whenever the model changes.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	c.generation++
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
