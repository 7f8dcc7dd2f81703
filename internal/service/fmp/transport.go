package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"FMPull/internal/domain/models"
	xhttp "FMPull/pkg/http"
	"FMPull/pkg/logger"
	"FMPull/pkg/util"
)

// errorMessageKey is how FMP reports failures inside a 200 or 4xx body.
const errorMessageKey = "Error Message"

// Fetcher returns the raw JSON payload behind a fully formed URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (json.RawMessage, error)
}

// Transport performs exactly one GET and classifies the answer.
type Transport struct {
	client *xhttp.Client
	logger *logger.Logger
}

func NewTransport(client *xhttp.Client, lgr *logger.Logger) *Transport {
	return &Transport{client: client, logger: lgr}
}

// Fetch fails with a *models.JobError of kind transport, empty or upstream.
func (t *Transport) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	safe := util.RedactURL(rawURL)

	resp, err := t.client.Get(ctx, rawURL)
	if err != nil {
		return nil, models.NewJobError(models.FailureTransport, safe, "request failed", err)
	}

	payload, err := Classify(safe, resp.StatusCode, resp.Body)
	if err != nil {
		t.logger.Debug("fmp request failed",
			logger.String("url", safe),
			logger.Int("status", resp.StatusCode),
			logger.Error(err),
		)
		return nil, err
	}
	return payload, nil
}

// Classify maps a status and body onto the failure taxonomy. url is only
// used for error messages and should already be redacted.
func Classify(url string, status int, body []byte) (json.RawMessage, error) {
	var payload any
	decodeErr := json.Unmarshal(body, &payload)
	msg, hasMsg := "", false
	if decodeErr == nil {
		msg, hasMsg = upstreamMessage(payload)
	}

	// Throttling and server faults stay retryable even when FMP wraps them
	// in an error envelope.
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		if !hasMsg {
			msg = fmt.Sprintf("unexpected status %d", status)
		}
		return nil, models.NewJobError(models.FailureTransport, url, msg, nil)
	}

	switch {
	case hasMsg:
		return nil, models.NewJobError(models.FailureUpstream, url, msg, nil)
	case status < 200 || status >= 300:
		return nil, models.NewJobError(models.FailureUpstream, url, fmt.Sprintf("unexpected status %d", status), nil)
	case decodeErr != nil:
		return nil, models.NewJobError(models.FailureUpstream, url, "decode payload", decodeErr)
	case isEmpty(payload):
		return nil, models.NewJobError(models.FailureEmpty, url, "no data returned", nil)
	}

	return json.RawMessage(body), nil
}

func upstreamMessage(payload any) (string, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := obj[errorMessageKey]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok && s != "" {
		return s, true
	}
	return fmt.Sprint(v), true
}

func isEmpty(payload any) bool {
	switch v := payload.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
