package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTask reads its Result from a per-message list. LPOP and BLPOP remove
// the value, so the result is delivered once.
type redisTask struct {
	q  *RedisQueue
	id string

	mu       sync.Mutex
	consumed bool
}

func (t *redisTask) ID() string { return t.id }

func (t *redisTask) Wait(ctx context.Context) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return nil, ErrResultConsumed
	}

	waitCtx, cancel := waitContext(ctx, t.q.config.WaitTimeout)
	defer cancel()

	key := t.q.keys.result(t.id)
	for waitCtx.Err() == nil {
		vals, err := t.q.client.BLPop(waitCtx, time.Second, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil && waitCtx.Err() != nil:
			return nil, waitErr(ctx, waitCtx)
		case err != nil:
			return nil, fmt.Errorf("blpop result: %w", err)
		case len(vals) == 2:
			return t.decode(vals[1])
		}
	}
	return nil, waitErr(ctx, waitCtx)
}

func (t *redisTask) Poll(ctx context.Context) (*Result, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return nil, false, ErrResultConsumed
	}

	val, err := t.q.client.LPop(ctx, t.q.keys.result(t.id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lpop result: %w", err)
	}
	res, err := t.decode(val)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (t *redisTask) Forget(ctx context.Context) error {
	return t.q.client.Del(ctx, t.q.keys.result(t.id)).Err()
}

// decode must be called with t.mu held.
func (t *redisTask) decode(raw string) (*Result, error) {
	t.consumed = true
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &res, nil
}
