package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"FMPull/pkg/logger"
)

// QueueMode selects which half of the queue a process runs.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

func (m QueueMode) consumes() bool { return m != ModeProducerOnly }

// promoteDue moves retries whose time has come back onto the message list in
// one step, so two consumers never both requeue the same message.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

type redisKeys struct {
	messages string
	retry    string
	dead     string
	results  string
}

func newRedisKeys(prefix string) redisKeys {
	return redisKeys{
		messages: prefix + ":messages",
		retry:    prefix + ":retry",
		dead:     prefix + ":dlq",
		results:  prefix + ":result:",
	}
}

func (k redisKeys) result(id string) string { return k.results + id }

// RedisQueue is a Redis-backed Backend. Producers LPUSH messages, workers
// BRPOP them, and each finished message leaves one Result in its own list.
type RedisQueue struct {
	logger *logger.Logger
	config *QueueConfig
	client *redis.Client
	mode   QueueMode
	prefix string
	keys   redisKeys

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every key the queue touches.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.prefix = prefix
	}
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger: lgr,
		config: config.withDefaults(),
		client: client,
		mode:   mode,
		prefix: "fmpull:queue",
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(rq)
	}
	rq.keys = newRedisKeys(rq.prefix)
	return rq
}

// NewRedisPublisher returns a started queue that only submits.
func NewRedisPublisher(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) (*RedisQueue, error) {
	q := NewRedisQueue(lgr, config, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		return nil, err
	}
	return q, nil
}

// NewRedisConsumer returns an unstarted queue that only runs jobs.
func NewRedisConsumer(lgr *logger.Logger, config *QueueConfig, client *redis.Client, jobs []Job, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, config, client, ModeConsumerOnly, opts...)
	q.RegisterJobs(jobs)
	return q
}

func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob is ignored by producer-only queues; they never run handlers.
func (r *RedisQueue) RegisterJob(job Job) {
	if !r.mode.consumes() {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	if r.mode.consumes() {
		r.wg.Add(r.config.Workers + 1)
		for i := 0; i < r.config.Workers; i++ {
			go r.worker(i)
		}
		go r.promoteRetries()
	}
	r.logger.Info("redis queue started",
		logger.String("mode", r.mode.String()),
		logger.String("addr", r.client.Options().Addr),
		logger.Int("workers", r.config.Workers))
	return nil
}

// Stop cancels in-flight handlers, which requeue their message, and waits
// for the workers until ctx is done.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message and returns its ID. Queues that consume check the
// type against their own registry first.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", ErrNotRunning
	}
	if r.mode.consumes() && !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.messages, data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

func (r *RedisQueue) Submit(ctx context.Context, msgType string, payload interface{}) (Task, error) {
	id, err := r.Enqueue(ctx, msgType, payload)
	if err != nil {
		return nil, err
	}
	return &redisTask{q: r, id: id}, nil
}

// DeadLetters returns up to n messages that ran out of retries, newest first.
func (r *RedisQueue) DeadLetters(ctx context.Context, n int64) ([]Message, error) {
	raw, err := r.client.LRange(ctx, r.keys.dead, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange dlq: %w", err)
	}
	out := make([]Message, 0, len(raw))
	for _, s := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(s), &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for r.ctx.Err() == nil {
		msg, ok := r.pop()
		if ok {
			r.process(msg)
		}
	}
	r.logger.Debug("queue worker stopped", logger.Int("worker_id", id))
}

// pop waits up to a second for the next message.
func (r *RedisQueue) pop() (Message, bool) {
	var msg Message
	vals, err := r.client.BRPop(r.ctx, time.Second, r.keys.messages).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil), r.ctx.Err() != nil:
		return msg, false
	default:
		r.logger.Error("brpop", logger.Error(err))
		r.pause(time.Second)
		return msg, false
	}

	if len(vals) < 2 {
		return msg, false
	}
	if err := json.Unmarshal([]byte(vals[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return msg, false
	}
	return msg, true
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.publish(&Result{ID: msg.ID, Type: msg.Type, Code: CodeNoHandler,
			Error: "no job registered for type " + msg.Type, Attempts: msg.Attempts, FinishedAt: time.Now()})
		return
	}

	value, err := job.Handle(r.ctx, rawPayload(msg.Payload))
	if err != nil && errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
		r.logger.Warn("message interrupted by shutdown, requeueing", logger.String("id", msg.ID))
		r.push(r.keys.messages, msg, true)
		return
	}

	res, retry := settle(msg, value, err, r.config.RetryLimit)
	switch {
	case retry:
		msg.Attempts++
		due := time.Now().Add(r.config.RetryDelay)
		r.logger.Warn("message failed, retry scheduled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Duration("delay", r.config.RetryDelay),
			logger.Error(err))
		r.scheduleRetry(msg, due)
		return
	case res.Code == CodeRetriesExhausted:
		r.logger.Error("retries exhausted", logger.String("id", msg.ID), logger.String("job", job.Name()), logger.Error(err))
		r.push(r.keys.dead, msg, false)
	}
	r.publish(res)
}

// rawPayload hands decoded JSON objects to handlers as raw JSON, which
// ParsePayload turns into the handler's own type.
func rawPayload(payload interface{}) interface{} {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	data, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return json.RawMessage(data)
}

// push writes msg to the head of key, or to the tail when front is set so
// it is popped next.
func (r *RedisQueue) push(key string, msg Message, front bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal message", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if front {
		err = r.client.RPush(ctx, key, data).Err()
	} else {
		err = r.client.LPush(ctx, key, data).Err()
	}
	if err != nil {
		r.logger.Error("push message", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) scheduleRetry(msg Message, due time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(due.UnixMilli()), Member: data}
	if err := r.client.ZAdd(context.Background(), r.keys.retry, z).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

// publish stores res in the message's result list with the result TTL.
func (r *RedisQueue) publish(res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		r.logger.Error("marshal result", logger.Error(err))
		return
	}

	ctx := context.Background()
	key := r.keys.result(res.ID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, r.config.ResultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("publish result", logger.String("id", res.ID), logger.Error(err))
	}
}

func (r *RedisQueue) promoteRetries() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.RetryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			keys := []string{r.keys.retry, r.keys.messages}
			n, err := promoteDue.Run(r.ctx, r.client, keys, time.Now().UnixMilli(), 100).Int()
			if err != nil && r.ctx.Err() == nil {
				r.logger.Error("promote retries", logger.Error(err))
			}
			if n > 0 {
				r.logger.Debug("retries requeued", logger.Int("count", n))
			}
		}
	}
}

func (r *RedisQueue) pause(d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.ctx.Done():
	}
}
