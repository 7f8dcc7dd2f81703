package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/pkg/logger"
)

type echoPayload struct {
	Value string `json:"value"`
	Fail  int    `json:"fail"` // fail this many times before succeeding
	Final bool   `json:"final"`
}

type codedErr struct{ code string }

func (c codedErr) Error() string { return "coded: " + c.code }
func (c codedErr) Code() string  { return c.code }

// echoJob returns the payload value, failing transiently or permanently on request.
type echoJob struct {
	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func newEchoJob() *echoJob { return &echoJob{calls: make(map[string]int)} }

func (j *echoJob) Name() string { return "echo" }
func (j *echoJob) Type() string { return "test.echo" }

func (j *echoJob) Handle(_ context.Context, payload interface{}) (interface{}, error) {
	p, err := ParsePayload[echoPayload](payload)
	if err != nil {
		return nil, Permanent(err)
	}
	j.total.Add(1)
	if p.Final {
		return nil, Permanent(codedErr{code: "empty"})
	}
	j.mu.Lock()
	j.calls[p.Value]++
	n := j.calls[p.Value]
	j.mu.Unlock()
	if n <= p.Fail {
		return nil, errors.New("transient")
	}
	return map[string]string{"echo": p.Value}, nil
}

func testConfig() *QueueConfig {
	return &QueueConfig{
		Workers:           2,
		RetryLimit:        2,
		RetryDelay:        10 * time.Millisecond,
		RetryPollInterval: 10 * time.Millisecond,
		ResultTTL:         time.Minute,
	}
}

func decodeEcho(t *testing.T, res *Result) string {
	t.Helper()
	var out map[string]string
	require.NoError(t, json.Unmarshal(res.Payload, &out))
	return out["echo"]
}

// backends runs fn against both Backend implementations.
func backends(t *testing.T, fn func(t *testing.T, b Backend, job *echoJob)) {
	t.Run("pool", func(t *testing.T) {
		job := newEchoJob()
		p := NewWorkerPool(logger.NewNop(), testConfig(), job)
		require.NoError(t, p.Start())
		defer p.Stop(context.Background())
		fn(t, p, job)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		job := newEchoJob()
		q := NewRedisQueue(logger.NewNop(), testConfig(), client, ModeProducerConsumer, WithKeyPrefix("test:queue"))
		q.RegisterJob(job)
		require.NoError(t, q.Start())
		defer q.Stop(context.Background())
		fn(t, q, job)
	})
}

func TestBackendDeliversResult(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, _ *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := b.Submit(ctx, "test.echo", echoPayload{Value: "a"})
		require.NoError(t, err)
		require.NotEmpty(t, task.ID())

		res, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.False(t, res.Failed())
		assert.Equal(t, "a", decodeEcho(t, res))
		assert.Equal(t, 1, res.Attempts)

		_, err = task.Wait(ctx)
		assert.ErrorIs(t, err, ErrResultConsumed)
		assert.NoError(t, task.Forget(ctx))
	})
}

func TestBackendRetriesTransientErrors(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, job *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := b.Submit(ctx, "test.echo", echoPayload{Value: "r", Fail: 2})
		require.NoError(t, err)
		res, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.False(t, res.Failed())
		assert.Equal(t, 3, res.Attempts)
		assert.EqualValues(t, 3, job.total.Load())
	})
}

func TestBackendGivesUpAfterRetryLimit(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, job *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := b.Submit(ctx, "test.echo", echoPayload{Value: "x", Fail: 100})
		require.NoError(t, err)
		res, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.True(t, res.Failed())
		assert.Equal(t, CodeRetriesExhausted, res.Code)
		assert.EqualValues(t, 3, job.total.Load())
	})
}

func TestBackendDoesNotRetryPermanentErrors(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, job *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := b.Submit(ctx, "test.echo", echoPayload{Value: "p", Final: true})
		require.NoError(t, err)
		res, err := task.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, "empty", res.Code)
		assert.EqualValues(t, 1, job.total.Load())
	})
}

func TestBackendPollConsumesOnce(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, _ *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		task, err := b.Submit(ctx, "test.echo", echoPayload{Value: "poll"})
		require.NoError(t, err)

		var res *Result
		require.Eventually(t, func() bool {
			r, ok, err := task.Poll(ctx)
			if err != nil || !ok {
				return false
			}
			res = r
			return true
		}, 3*time.Second, 5*time.Millisecond)
		assert.Equal(t, "poll", decodeEcho(t, res))

		_, _, err = task.Poll(ctx)
		assert.ErrorIs(t, err, ErrResultConsumed)
	})
}

func TestBackendManyTasks(t *testing.T) {
	backends(t, func(t *testing.T, b Backend, _ *echoJob) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		const n = 25
		tasks := make([]Task, n)
		for i := range tasks {
			task, err := b.Submit(ctx, "test.echo", echoPayload{Value: string(rune('a' + i))})
			require.NoError(t, err)
			tasks[i] = task
		}

		// collect in reverse order
		seen := make(map[string]bool)
		for i := n - 1; i >= 0; i-- {
			res, err := tasks[i].Wait(ctx)
			require.NoError(t, err)
			v := decodeEcho(t, res)
			assert.Equal(t, string(rune('a'+i)), v)
			assert.False(t, seen[v])
			seen[v] = true
		}
		assert.Len(t, seen, n)
	})
}

func TestWaitTimeout(t *testing.T) {
	blocker := &blockingJob{release: make(chan struct{})}
	defer close(blocker.release)

	cfg := testConfig()
	cfg.WaitTimeout = 20 * time.Millisecond
	p := NewWorkerPool(logger.NewNop(), cfg, blocker)
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	task, err := p.Submit(context.Background(), "test.block", nil)
	require.NoError(t, err)
	_, err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestSubmitUnknownType(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), testConfig(), newEchoJob())
	require.NoError(t, p.Start())
	defer p.Stop(context.Background())

	_, err := p.Submit(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestSubmitBeforeStart(t *testing.T) {
	p := NewWorkerPool(logger.NewNop(), testConfig(), newEchoJob())
	_, err := p.Submit(context.Background(), "test.echo", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

type blockingJob struct{ release chan struct{} }

func (b *blockingJob) Name() string { return "block" }
func (b *blockingJob) Type() string { return "test.block" }
func (b *blockingJob) Handle(ctx context.Context, _ interface{}) (interface{}, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func TestRedisDeadLettersAndQueueMode(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	job := newEchoJob()
	q := NewRedisQueue(logger.NewNop(), testConfig(), client, ModeProducerConsumer, WithKeyPrefix("dl"))
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := q.Submit(ctx, "test.echo", echoPayload{Value: "dead", Fail: 100})
	require.NoError(t, err)
	_, err = task.Wait(ctx)
	require.NoError(t, err)

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, task.ID(), dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempts)

	assert.Equal(t, "producer-only", ModeProducerOnly.String())
	assert.Equal(t, "consumer-only", ModeConsumerOnly.String())
}
