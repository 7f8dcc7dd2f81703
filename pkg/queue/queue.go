package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrResultConsumed = errors.New("queue: result already consumed")
	ErrTaskTimeout    = errors.New("queue: timed out waiting for task")
	ErrNotRunning     = errors.New("queue: not running")
)

// Result codes set by the queue itself. Handler errors contribute their own
// code through a Code() string method.
const (
	CodeRetriesExhausted = "retries_exhausted"
	CodeNoHandler        = "no_handler"
	CodeStopped          = "stopped"
	CodeEncode           = "encode"
	CodeFailed           = "failed"
)

// Backend accepts work and returns a handle on its eventual Result.
type Backend interface {
	Submit(ctx context.Context, msgType string, payload interface{}) (Task, error)
}

// Task is a submitted message. Its Result can be taken exactly once, by
// Wait or by a successful Poll.
type Task interface {
	ID() string
	// Wait blocks until the result is available, ctx is done or the
	// backend's wait timeout expires (ErrTaskTimeout).
	Wait(ctx context.Context) (*Result, error)
	// Poll returns (result, true, nil) once the task is finished.
	Poll(ctx context.Context) (*Result, bool, error)
	// Forget drops any backend-side bookkeeping for the task.
	Forget(ctx context.Context) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers           int           // number of workers
	QueueSize         int           // in-process buffer size
	RetryLimit        int           // retries after the first attempt
	RetryDelay        time.Duration // time delay between retries
	RetryPollInterval time.Duration // how often due retries are moved back
	ResultTTL         time.Duration // how long an unread result is kept
	WaitTimeout       time.Duration // 0 waits as long as ctx allows
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 1024
	}
	if out.RetryLimit < 0 {
		out.RetryLimit = 0
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	if out.RetryPollInterval <= 0 {
		out.RetryPollInterval = time.Second
	}
	if out.ResultTTL <= 0 {
		out.ResultTTL = time.Hour
	}
	return &out
}

// Message represents a message in the queue
type Message struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Attempts  int         `json:"attempts"`
	Timestamp time.Time   `json:"timestamp"`
}

// Result is what a finished message leaves behind.
type Result struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Code       string          `json:"code,omitempty"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Failed reports whether the handler did not produce a value.
func (r *Result) Failed() bool { return r.Error != "" || r.Code != "" }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped by Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func errorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeFailed
}

// settle decides what happens to msg after one Handle call: a final Result,
// or retry with a nil Result.
func settle(msg Message, value interface{}, err error, retryLimit int) (*Result, bool) {
	res := &Result{ID: msg.ID, Type: msg.Type, Attempts: msg.Attempts + 1, FinishedAt: time.Now()}

	switch {
	case err == nil:
		data, mErr := json.Marshal(value)
		if mErr != nil {
			res.Code = CodeEncode
			res.Error = mErr.Error()
			return res, false
		}
		res.Payload = data
		return res, false
	case IsPermanent(err):
		res.Code = errorCode(err)
		res.Error = err.Error()
		return res, false
	case msg.Attempts < retryLimit:
		return nil, true
	default:
		res.Code = CodeRetriesExhausted
		res.Error = err.Error()
		return res, false
	}
}

func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case map[string]interface{}:
		jsonData, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal map to json: %w", err)
		}
		if err := json.Unmarshal(jsonData, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal json to struct: %w", err)
		}
		return &result, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

// waitContext applies the configured wait timeout on top of ctx.
func waitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// waitErr maps our own timeout onto ErrTaskTimeout, leaving the caller's
// cancellation as is.
func waitErr(parent, waitCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return ErrTaskTimeout
	}
	return waitCtx.Err()
}
