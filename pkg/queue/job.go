package queue

import "context"

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the job with the given payload. The returned value is
	// JSON encoded into the message Result. A non-nil error is retried up to
	// the queue's RetryLimit unless it is wrapped with Permanent.
	Handle(ctx context.Context, payload interface{}) (interface{}, error)
}
