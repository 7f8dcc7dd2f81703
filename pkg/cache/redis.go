package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores values under "<prefix>:<key>" on a client it does not own.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisCache)

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: "fmpull:cache"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, GenerateKey(c.prefix, key), value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, _, err := c.GetWithTTL(ctx, key)
	return v, err
}

// GetWithTTL returns the value and its remaining lifetime in one round trip.
// The lifetime is zero for keys without an expiry.
func (c *RedisCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	k := GenerateKey(c.prefix, key)
	pipe := c.client.Pipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	_, _ = pipe.Exec(ctx)

	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrCacheMiss
	}
	if err != nil {
		return nil, 0, err
	}

	left := ttl.Val()
	if ttl.Err() != nil || left < 0 {
		left = 0
	}
	return data, left, nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	wrapped := make([]string, len(keys))
	for i, key := range keys {
		wrapped[i] = GenerateKey(c.prefix, key)
	}
	return c.client.Unlink(ctx, wrapped...).Err()
}

// Close is a no-op; the client is shared with the queue.
func (c *RedisCache) Close() error { return nil }
