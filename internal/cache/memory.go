package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps values in process memory
type Memory[V any] struct {
	cache *gocache.Cache
}

// NewMemory creates a memory cache. A cleanupInterval of 0 disables the
// background janitor; expired entries are then dropped lazily on Get.
func NewMemory[V any](defaultTTL, cleanupInterval time.Duration) *Memory[V] {
	return &Memory[V]{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a value from the cache
func (c *Memory[V]) Get(key string) (V, bool) {
	if val, found := c.cache.Get(key); found {
		if v, ok := val.(V); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Set stores a value; a ttl of 0 uses the default TTL
func (c *Memory[V]) Set(key string, value V, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// Delete removes a value from the cache
func (c *Memory[V]) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all values from the cache
func (c *Memory[V]) Clear() error {
	c.cache.Flush()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (c *Memory[V]) Len() int {
	return c.cache.ItemCount()
}
