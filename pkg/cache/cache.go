// Package cache stores upstream payloads by key, in process, in Redis or in
// both layers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Store is a byte-oriented cache. Values are opaque to the cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// GenerateKey joins a namespace and an ID.
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}

// HashKey hashes a key that may carry secrets (e.g. a URL with an API key).
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
