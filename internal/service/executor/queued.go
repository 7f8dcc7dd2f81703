package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FMPull/internal/domain/models"
	"FMPull/internal/domain/repository"
	"FMPull/pkg/logger"
	"FMPull/pkg/queue"
	"FMPull/pkg/util"
)

const (
	StrategyQueueBlocking = "queue-blocking"
	StrategyQueueAsync    = "queue-async"
)

// Queued submits Jobs to a queue backend. Blocking mode waits for each Job
// before returning; async mode hands back pending handles.
type Queued struct {
	backend  queue.Backend
	blocking bool
	metrics  repository.Metrics
	logger   *logger.Logger
}

func NewBlockingQueue(b queue.Backend, m repository.Metrics, lgr *logger.Logger) *Queued {
	return &Queued{backend: b, blocking: true, metrics: m, logger: lgr}
}

func NewAsyncQueue(b queue.Backend, m repository.Metrics, lgr *logger.Logger) *Queued {
	return &Queued{backend: b, blocking: false, metrics: m, logger: lgr}
}

func (q *Queued) Name() string {
	if q.blocking {
		return StrategyQueueBlocking
	}
	return StrategyQueueAsync
}

// Submit fails only when the backend refuses the Job.
func (q *Queued) Submit(ctx context.Context, job models.Job) (*models.Handle, error) {
	task, err := q.backend.Submit(ctx, FetchTaskType, newFetchTask(job))
	if err != nil {
		q.metrics.RecordError("queue_submit")
		return nil, fmt.Errorf("submit %s/%s: %w", job.Series, job.Key, err)
	}
	q.metrics.RecordJobSubmitted(q.Name(), job.Series)

	if !q.blocking {
		return models.NewPendingHandle(job, &taskAwaiter{q: q, job: job, task: task}), nil
	}

	out, err := q.await(ctx, job, task)
	if err != nil {
		return nil, err
	}
	return models.NewResolvedHandle(job, out), nil
}

func (q *Queued) Collect(ctx context.Context, h *models.Handle) (models.Outcome, error) {
	return h.Collect(ctx)
}

func (q *Queued) await(ctx context.Context, job models.Job, task queue.Task) (models.Outcome, error) {
	start := time.Now()
	res, err := task.Wait(ctx)
	q.metrics.RecordLatency("fetch_"+q.Name(), time.Since(start).Seconds())

	defer func() {
		if ferr := task.Forget(context.WithoutCancel(ctx)); ferr != nil {
			q.logger.Debug("forget task", logger.String("id", task.ID()), logger.Error(ferr))
		}
	}()

	if errors.Is(err, queue.ErrTaskTimeout) {
		return models.Failed(models.NewJobError(models.FailureTransport, util.RedactURL(job.URL), "timed out waiting for worker", err)), nil
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("wait %s/%s: %w", job.Series, job.Key, err)
	}
	return outcomeFromResult(job, res), nil
}

type taskAwaiter struct {
	q    *Queued
	job  models.Job
	task queue.Task
}

func (a *taskAwaiter) Await(ctx context.Context) (models.Outcome, error) {
	return a.q.await(ctx, a.job, a.task)
}

func (a *taskAwaiter) Release(ctx context.Context) error {
	return a.task.Forget(ctx)
}
