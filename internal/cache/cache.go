// Package cache stores parsed record batches keyed by their source identity.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache holds values of type V with a per-entry TTL
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key hashes the parts that identify a cached value. The result is safe to
// use as a file name.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "intentra-v1-" + hex.EncodeToString(hash[:])
}
