package cache

import (
	"errors"
	"time"
)

// Layered checks memory first and falls back to disk
type Layered[V any] struct {
	memory Cache[V]
	disk   Cache[V]
}

// NewLayered combines a memory cache and a disk cache under dir
func NewLayered[V any](memoryTTL, cleanupInterval time.Duration, diskDir string, diskTTL time.Duration) *Layered[V] {
	return &Layered[V]{
		memory: NewMemory[V](memoryTTL, cleanupInterval),
		disk:   NewDisk[V](diskDir, diskTTL),
	}
}

// Get retrieves a value, promoting disk hits into memory
func (c *Layered[V]) Get(key string) (V, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if val, found := c.disk.Get(key); found {
		_ = c.memory.Set(key, val, 0)
		return val, true
	}

	var zero V
	return zero, false
}

// Set stores a value in both layers
func (c *Layered[V]) Set(key string, value V, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	return c.disk.Set(key, value, ttl)
}

// Delete removes a value from both layers
func (c *Layered[V]) Delete(key string) error {
	return errors.Join(c.memory.Delete(key), c.disk.Delete(key))
}

// Clear empties both layers
func (c *Layered[V]) Clear() error {
	return errors.Join(c.memory.Clear(), c.disk.Clear())
}
