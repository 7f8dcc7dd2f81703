package cache

import (
	"context"
	"time"
)

// LayeredCache keeps a small in-process copy (L1) in front of Redis (L2).
// An L1 entry never outlives the L2 entry it was copied from.
type LayeredCache struct {
	mem    *MemoryCache
	redis  *RedisCache
	memTTL time.Duration
}

type LayeredOption func(*layeredConfig)

type layeredConfig struct {
	memSize int
	memTTL  time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *layeredConfig) {
		c.memSize = size
	}
}

// WithLayeredMemoryTTL caps how long a value stays in L1.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(c *layeredConfig) {
		c.memTTL = ttl
	}
}

func NewLayeredCache(rc *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &layeredConfig{memSize: 1000, memTTL: 5 * time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.memSize)),
		redis:  rc,
		memTTL: cfg.memTTL,
	}
}

// Set writes Redis first so a failed write leaves L1 untouched.
func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, lc.l1TTL(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := lc.mem.Get(ctx, key); err == nil {
		return v, nil
	}

	v, left, err := lc.redis.GetWithTTL(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.mem.Set(ctx, key, v, lc.l1TTL(left))
	return v, nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

// Close stops L1; the Redis client is owned elsewhere.
func (lc *LayeredCache) Close() error {
	return lc.mem.Close()
}

func (lc *LayeredCache) l1TTL(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.memTTL {
		return expiration
	}
	return lc.memTTL
}
