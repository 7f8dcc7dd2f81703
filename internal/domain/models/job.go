package models

import (
	"context"
	"sync"
	"time"
)

// Job is one outstanding remote request.
type Job struct {
	ID          string
	URL         string
	Series      string
	Symbol      string // empty for composite series
	Key         string // inner Batch key: the symbol or the indicator label
	Window      QueryWindow
	Shape       RecordShape
	Pages       int
	DateField   string
	SubmittedAt time.Time
}

// OutcomeState tags which member of Outcome is set.
type OutcomeState int

const (
	OutcomePending OutcomeState = iota
	OutcomeRecord
	OutcomeFailure
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeRecord:
		return "record"
	case OutcomeFailure:
		return "failure"
	}
	return "pending"
}

// Outcome is the resolution of a Job: pending, a record, or a classified failure.
type Outcome struct {
	State   OutcomeState
	Record  *Record
	Failure *JobError
}

func Succeeded(r *Record) Outcome { return Outcome{State: OutcomeRecord, Record: r} }

func Failed(err *JobError) Outcome { return Outcome{State: OutcomeFailure, Failure: err} }

func (o Outcome) Pending() bool { return o.State == OutcomePending }
func (o Outcome) OK() bool      { return o.State == OutcomeRecord }

// Kind is the failure kind, or "" when the outcome is not a failure.
func (o Outcome) Kind() FailureKind {
	if o.State != OutcomeFailure || o.Failure == nil {
		return ""
	}
	return o.Failure.Kind
}

// Awaiter resolves a pending handle. Implemented by queue-backed strategies.
type Awaiter interface {
	Await(ctx context.Context) (Outcome, error)
}

// Releaser is implemented by awaiters holding backend state until their
// outcome is read.
type Releaser interface {
	Release(ctx context.Context) error
}

// Handle is an opaque reference to a Job's eventual Outcome. It can be
// collected exactly once.
type Handle struct {
	job Job

	mu        sync.Mutex
	outcome   Outcome
	awaiter   Awaiter
	collected bool
}

func NewResolvedHandle(job Job, outcome Outcome) *Handle {
	return &Handle{job: job, outcome: outcome}
}

func NewPendingHandle(job Job, awaiter Awaiter) *Handle {
	return &Handle{job: job, awaiter: awaiter}
}

func (h *Handle) Job() Job { return h.job }

// Resolved reports whether the outcome is known without waiting.
func (h *Handle) Resolved() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.outcome.Pending()
}

// Peek returns the current outcome without consuming the handle.
func (h *Handle) Peek() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Collect consumes the handle, waiting on the awaiter if needed.
func (h *Handle) Collect(ctx context.Context) (Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.collected {
		return Outcome{}, ErrHandleCollected
	}
	if h.outcome.Pending() {
		if h.awaiter == nil {
			return Outcome{}, ErrMalformedBatch
		}
		out, err := h.awaiter.Await(ctx)
		if err != nil {
			return Outcome{}, err
		}
		h.outcome = out
	}
	h.collected = true
	return h.outcome, nil
}

// Release consumes the handle without reading its outcome and lets the
// awaiter drop whatever it still holds. Collected handles are left alone.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.collected {
		return nil
	}
	h.collected = true
	if r, ok := h.awaiter.(Releaser); ok && h.outcome.Pending() {
		return r.Release(ctx)
	}
	return nil
}
