package models

import (
	"errors"
	"fmt"
)

var (
	// Job level failures. They never cross a Job boundary.
	ErrTransport        = errors.New("transport error")
	ErrEmptyResult      = errors.New("empty result")
	ErrUpstream         = errors.New("upstream error")
	ErrRequestExhausted = errors.New("request exhausted")

	// Call-time failures raised synchronously by the fan-out.
	ErrAccessRestricted  = errors.New("access restricted")
	ErrInvalidDateFormat = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrUnknownSeries     = errors.New("unknown series")
	ErrInvalidPeriod     = errors.New("invalid period mode")
	ErrNoSymbols         = errors.New("no symbols given")

	// Collector misuse.
	ErrHandleCollected = errors.New("handle already collected")
	ErrBatchCollected  = errors.New("batch already collected")
	ErrMalformedBatch  = errors.New("malformed batch")
)

// FailureKind classifies why a Job produced no record.
type FailureKind string

const (
	FailureTransport  FailureKind = "transport"
	FailureEmpty      FailureKind = "empty"
	FailureUpstream   FailureKind = "upstream"
	FailureExhausted  FailureKind = "exhausted"
	FailureRestricted FailureKind = "restricted"
)

var kindSentinels = map[FailureKind]error{
	FailureTransport:  ErrTransport,
	FailureEmpty:      ErrEmptyResult,
	FailureUpstream:   ErrUpstream,
	FailureExhausted:  ErrRequestExhausted,
	FailureRestricted: ErrAccessRestricted,
}

// ParseFailureKind accepts the lower-case names used in config files.
func ParseFailureKind(s string) (FailureKind, error) {
	k := FailureKind(s)
	if _, ok := kindSentinels[k]; !ok {
		return "", fmt.Errorf("unknown failure kind %q", s)
	}
	return k, nil
}

// JobError is the failure of exactly one Job.
type JobError struct {
	Kind    FailureKind
	URL     string // redacted
	Message string
	Err     error
}

func NewJobError(kind FailureKind, url, message string, cause error) *JobError {
	return &JobError{Kind: kind, URL: url, Message: message, Err: cause}
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.URL == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.URL)
}

func (e *JobError) Unwrap() error { return e.Err }

// Is lets errors.Is match a JobError against the sentinel of its kind.
func (e *JobError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Code exposes the kind to backends that only carry strings.
func (e *JobError) Code() string { return string(e.Kind) }

// KindOf extracts the failure kind of err. Unknown errors count as transport failures.
func KindOf(err error) FailureKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return FailureTransport
}

// IsRequestFailed reports a semantic "no data" answer from upstream.
func IsRequestFailed(err error) bool {
	k := KindOf(err)
	return k == FailureEmpty || k == FailureUpstream
}

// IsRetryable reports whether err is worth another attempt. Only the
// outermost kind counts: an exhausted error wrapping a transport error is final.
func IsRetryable(err error) bool {
	return KindOf(err) == FailureTransport
}
