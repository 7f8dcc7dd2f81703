package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FMPull/pkg/logger"
)

// WorkerPool is an in-process Backend with a fixed number of workers. It
// follows the RedisQueue retry rules and delivers each Result once.
type WorkerPool struct {
	logger *logger.Logger
	config *QueueConfig
	jobs   map[string]Job
	tasks  chan *poolTask

	mu        sync.RWMutex
	isRunning bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewWorkerPool creates a pool handling the given jobs. Call Start before Submit.
func NewWorkerPool(lgr *logger.Logger, config *QueueConfig, jobs ...Job) *WorkerPool {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		logger: lgr,
		config: cfg,
		jobs:   make(map[string]Job, len(jobs)),
		tasks:  make(chan *poolTask, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, j := range jobs {
		p.jobs[j.Type()] = j
	}
	return p
}

func (p *WorkerPool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isRunning {
		return fmt.Errorf("worker pool already running")
	}
	if p.ctx.Err() != nil {
		return fmt.Errorf("worker pool stopped")
	}
	p.isRunning = true
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", logger.Int("workers", p.config.Workers))
	return nil
}

// Stop cancels running handlers and fails every queued task with CodeStopped.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
	}

	for {
		select {
		case t := <-p.tasks:
			t.finish(&Result{ID: t.msg.ID, Type: t.msg.Type, Code: CodeStopped, Error: "worker pool stopped", FinishedAt: time.Now()})
		default:
			p.logger.Info("worker pool stopped")
			return nil
		}
	}
}

// Submit implements Backend. It blocks only while the buffer is full.
func (p *WorkerPool) Submit(ctx context.Context, msgType string, payload interface{}) (Task, error) {
	p.mu.RLock()
	running := p.isRunning
	_, known := p.jobs[msgType]
	p.mu.RUnlock()

	if !running {
		return nil, ErrNotRunning
	}
	if !known {
		return nil, fmt.Errorf("no job registered for type: %s", msgType)
	}

	t := &poolTask{
		msg:     Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()},
		done:    make(chan struct{}),
		timeout: p.config.WaitTimeout,
	}

	select {
	case p.tasks <- t:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrNotRunning
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-p.tasks:
			p.run(t)
		}
	}
}

func (p *WorkerPool) run(t *poolTask) {
	job := p.jobs[t.msg.Type]
	msg := t.msg
	for {
		value, err := job.Handle(p.ctx, msg.Payload)
		res, retry := settle(msg, value, err, p.config.RetryLimit)
		if !retry {
			if res.Code == CodeRetriesExhausted {
				p.logger.Error("max retries reached",
					logger.String("id", msg.ID),
					logger.String("job", job.Name()),
					logger.Error(err))
			}
			t.finish(res)
			return
		}

		msg.Attempts++
		p.logger.Warn("message processing error, retrying",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Error(err))

		timer := time.NewTimer(p.config.RetryDelay)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			t.finish(&Result{ID: msg.ID, Type: msg.Type, Code: CodeStopped, Error: "worker pool stopped", Attempts: msg.Attempts, FinishedAt: time.Now()})
			return
		case <-timer.C:
		}
	}
}

type poolTask struct {
	msg     Message
	done    chan struct{}
	timeout time.Duration

	mu       sync.Mutex
	result   *Result
	consumed bool
}

func (t *poolTask) finish(res *Result) {
	t.mu.Lock()
	if !t.consumed {
		t.result = res
	}
	t.mu.Unlock()
	close(t.done)
}

func (t *poolTask) ID() string { return t.msg.ID }

func (t *poolTask) Wait(ctx context.Context) (*Result, error) {
	waitCtx, cancel := waitContext(ctx, t.timeout)
	defer cancel()

	select {
	case <-t.done:
		return t.take()
	case <-waitCtx.Done():
		return nil, waitErr(ctx, waitCtx)
	}
}

func (t *poolTask) Poll(_ context.Context) (*Result, bool, error) {
	select {
	case <-t.done:
		res, err := t.take()
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	default:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.consumed {
			return nil, false, ErrResultConsumed
		}
		return nil, false, nil
	}
}

func (t *poolTask) take() (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed {
		return nil, ErrResultConsumed
	}
	t.consumed = true
	return t.result, nil
}

// Forget releases the stored result.
func (t *poolTask) Forget(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = nil
	t.consumed = true
	return nil
}
