package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"FMPull/internal/domain/models"
	"FMPull/internal/service/fmp"
	"FMPull/internal/service/ratelimit"
	"FMPull/pkg/logger"
	"FMPull/pkg/queue"
)

// FetchTaskType is the queue message type for one upstream request.
const FetchTaskType = "fmp.fetch"

// FetchTask is what crosses the queue. The URL carries the API key.
type FetchTask struct {
	JobID  string `json:"job_id"`
	URL    string `json:"url"`
	Series string `json:"series"`
	Key    string `json:"key"`
	Pages  int    `json:"pages,omitempty"`
}

func newFetchTask(job models.Job) FetchTask {
	return FetchTask{JobID: job.ID, URL: job.URL, Series: job.Series, Key: job.Key, Pages: job.Pages}
}

// FetchJob runs on queue workers: one Transport attempt per delivery,
// paced per upstream host. Connection failures are left to the queue's
// retry loop, "no data" answers are final.
type FetchJob struct {
	fetcher fmp.Fetcher
	limiter *ratelimit.Limiter
	logger  *logger.Logger
}

func NewFetchJob(fetcher fmp.Fetcher, limiter *ratelimit.Limiter, lgr *logger.Logger) *FetchJob {
	return &FetchJob{fetcher: fetcher, limiter: limiter, logger: lgr}
}

func (j *FetchJob) Name() string { return "fmp-fetch" }
func (j *FetchJob) Type() string { return FetchTaskType }

func (j *FetchJob) Handle(ctx context.Context, payload interface{}) (interface{}, error) {
	task, err := queue.ParsePayload[FetchTask](payload)
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("parse fetch task: %w", err))
	}

	body, err := fmp.FetchPages(ctx, pacedFetcher{next: j.fetcher, limiter: j.limiter}, task.URL, task.Pages)
	if err != nil {
		j.logger.Debug("fetch task failed",
			logger.String("series", task.Series),
			logger.String("key", task.Key),
			logger.URL("url", task.URL),
			logger.Error(err))
		if models.IsRetryable(err) {
			return nil, err
		}
		return nil, queue.Permanent(newTaskError(err))
	}
	return body, nil
}

// taskError carries a failure kind through the queue as a result code.
type taskError struct {
	kind models.FailureKind
	msg  string
}

func newTaskError(err error) taskError {
	var je *models.JobError
	if errors.As(err, &je) && je.Message != "" {
		return taskError{kind: je.Kind, msg: je.Message}
	}
	return taskError{kind: models.KindOf(err), msg: err.Error()}
}

func (e taskError) Error() string { return e.msg }
func (e taskError) Code() string  { return string(e.kind) }

// pacedFetcher waits on the per-host limiter before every request.
type pacedFetcher struct {
	next    fmp.Fetcher
	limiter *ratelimit.Limiter
}

func (p pacedFetcher) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, hostOf(rawURL)); err != nil {
			return nil, err
		}
	}
	return p.next.Fetch(ctx, rawURL)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Host
}
