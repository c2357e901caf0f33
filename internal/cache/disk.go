package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Disk persists JSON-encoded values so one-shot commands can reuse earlier work
type Disk[V any] struct {
	dir string
	ttl time.Duration
}

// NewDisk creates a disk cache rooted at dir
func NewDisk[V any](dir string, ttl time.Duration) *Disk[V] {
	return &Disk[V]{
		dir: dir,
		ttl: ttl,
	}
}

type diskEntry[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get reads a value; unreadable or expired entries count as misses
func (c *Disk[V]) Get(key string) (V, bool) {
	var zero V
	path := c.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, false
	}

	var entry diskEntry[V]
	if err := json.Unmarshal(data, &entry); err != nil {
		return zero, false
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = os.Remove(path)
		return zero, false
	}

	return entry.Value, true
}

// Set writes a value; a ttl of 0 uses the cache TTL
func (c *Disk[V]) Set(key string, value V, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	data, err := json.Marshal(diskEntry[V]{
		Value:     value,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// Write then rename so a concurrent reader never sees a partial file
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}

	return nil
}

// Delete removes a value from the disk cache
func (c *Disk[V]) Delete(key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes all cached files
func (c *Disk[V]) Clear() error {
	return os.RemoveAll(c.dir)
}

func (c *Disk[V]) path(key string) string {
	return filepath.Join(c.dir, key+".cache")
}
