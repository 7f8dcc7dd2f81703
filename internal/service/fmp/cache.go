package fmp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"FMPull/pkg/cache"
	"FMPull/pkg/logger"
)

// CachedFetcher serves repeated URLs from a cache. Only successful payloads
// are stored. Concurrent misses on one URL share a single upstream call.
type CachedFetcher struct {
	next   Fetcher
	store  cache.Store
	ttl    time.Duration
	group  singleflight.Group
	logger *logger.Logger
}

func NewCachedFetcher(next Fetcher, store cache.Store, ttl time.Duration, lgr *logger.Logger) *CachedFetcher {
	return &CachedFetcher{next: next, store: store, ttl: ttl, logger: lgr}
}

func (c *CachedFetcher) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	key := cache.GenerateKey("fmp", cache.HashKey(rawURL))

	if v, err := c.store.Get(ctx, key); err == nil {
		return json.RawMessage(v), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("cache read failed", logger.Error(err))
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		payload, err := c.next.Fetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, payload, c.ttl); err != nil {
			c.logger.Warn("cache write failed", logger.Error(err))
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared upstream fetch", logger.String("key", key))
	}
	return v.(json.RawMessage), nil
}
