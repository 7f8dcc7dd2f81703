package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"FMPull/internal/domain/models"
	"FMPull/pkg/logger"
	"FMPull/pkg/util"
)

// RetryDecision is the policy table entry for one failure kind.
type RetryDecision int

const (
	Fail RetryDecision = iota
	Retry
)

// DefaultRetryTable retries connection problems only. An explicit upstream
// "no data" answer will not change on a second try.
var DefaultRetryTable = map[models.FailureKind]RetryDecision{
	models.FailureTransport:  Retry,
	models.FailureEmpty:      Fail,
	models.FailureUpstream:   Fail,
	models.FailureExhausted:  Fail,
	models.FailureRestricted: Fail,
}

// RetryPolicy bounds attempts for the direct strategy.
type RetryPolicy struct {
	Retries         int
	WaitBeforeQuery time.Duration
	WaitBeforeRetry time.Duration
	Table           map[models.FailureKind]RetryDecision
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:         5,
		WaitBeforeQuery: 10 * time.Millisecond,
		WaitBeforeRetry: 10 * time.Second,
		Table:           DefaultRetryTable,
	}
}

func (p RetryPolicy) decide(err error) RetryDecision {
	table := p.Table
	if table == nil {
		table = DefaultRetryTable
	}
	return table[models.KindOf(err)]
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryOption configures Retrier.
type RetryOption func(*Retrier)

// WithSleep swaps the sleeper, for tests.
func WithSleep(fn SleepFunc) RetryOption {
	return func(r *Retrier) {
		r.sleep = fn
	}
}

// Retrier wraps a Fetcher with RetryPolicy.
type Retrier struct {
	next   Fetcher
	policy RetryPolicy
	sleep  SleepFunc
	logger *logger.Logger
}

func NewRetrier(next Fetcher, policy RetryPolicy, lgr *logger.Logger, opts ...RetryOption) *Retrier {
	r := &Retrier{next: next, policy: policy, sleep: sleepCtx, logger: lgr}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Fetch tries up to Retries times. Non-retryable failures are returned as is;
// running out of attempts yields a RequestExhausted JobError.
func (r *Retrier) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	attempts := r.policy.Retries
	if attempts < 1 {
		attempts = 1
	}
	safe := util.RedactURL(rawURL)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := r.sleep(ctx, r.policy.WaitBeforeQuery); err != nil {
			return nil, models.NewJobError(models.FailureTransport, safe, "cancelled", err)
		}

		payload, err := r.next.Fetch(ctx, rawURL)
		if err == nil {
			return payload, nil
		}
		if r.policy.decide(err) != Retry {
			return nil, err
		}

		lastErr = err
		r.logger.Warn("fmp request failed, retrying",
			logger.String("url", safe),
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", attempts),
			logger.Error(err),
		)

		if attempt < attempts {
			if err := r.sleep(ctx, r.policy.WaitBeforeRetry); err != nil {
				return nil, models.NewJobError(models.FailureTransport, safe, "cancelled", err)
			}
		}
	}

	return nil, models.NewJobError(models.FailureExhausted, safe,
		fmt.Sprintf("giving up after %d attempts", attempts), lastErr)
}
