package fmp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/internal/domain/models"
	xhttp "FMPull/pkg/http"
	"FMPull/pkg/logger"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   models.FailureKind
	}{
		{"rows", http.StatusOK, `[{"date":"2024-01-02"}]`, ""},
		{"object", http.StatusOK, `{"symbol":"AAPL","historical":[{"close":1}]}`, ""},
		{"empty array", http.StatusOK, `[]`, models.FailureEmpty},
		{"empty object", http.StatusOK, `{}`, models.FailureEmpty},
		{"null", http.StatusOK, `null`, models.FailureEmpty},
		{"error envelope", http.StatusOK, `{"Error Message":"Invalid API KEY."}`, models.FailureUpstream},
		{"error envelope on 403", http.StatusForbidden, `{"Error Message":"Exclusive Endpoint"}`, models.FailureUpstream},
		{"bad json", http.StatusOK, `<html>`, models.FailureUpstream},
		{"not found", http.StatusNotFound, `nope`, models.FailureUpstream},
		{"server error", http.StatusBadGateway, `bad gateway`, models.FailureTransport},
		{"throttled", http.StatusTooManyRequests, `slow down`, models.FailureTransport},
		{"throttled with envelope", http.StatusTooManyRequests, `{"Error Message":"Limit Reach . Please upgrade your plan"}`, models.FailureTransport},
		{"unavailable with envelope", http.StatusServiceUnavailable, `{"Error Message":"Service Unavailable"}`, models.FailureTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := Classify("u", tc.status, []byte(tc.body))
			if tc.kind == "" {
				require.NoError(t, err)
				assert.JSONEq(t, tc.body, string(payload))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.kind, models.KindOf(err))
		})
	}
}

func TestClassifyKeepsEnvelopeMessageOnThrottle(t *testing.T) {
	_, err := Classify("u", http.StatusTooManyRequests, []byte(`{"Error Message":"Limit Reach"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransport))
	assert.Contains(t, err.Error(), "Limit Reach")
}

func TestRetrierRetriesThrottledResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"Error Message":"Limit Reach . Please upgrade your plan"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"AAPL"}]`))
	}))
	defer srv.Close()

	tr := NewTransport(xhttp.NewClient(), logger.NewNop())
	r := NewRetrier(tr, RetryPolicy{Retries: 3}, logger.NewNop(), WithSleep((&sleepLog{}).sleep))

	payload, err := r.Fetch(context.Background(), srv.URL+"/api/v3/profile/AAPL")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "AAPL")
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportFetchAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("apikey"))
		switch r.URL.Path {
		case "/api/v3/profile/AAPL":
			_, _ = w.Write([]byte(`[{"symbol":"AAPL","companyName":"Apple Inc."}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	tr := NewTransport(xhttp.NewClient(), logger.NewNop())

	payload, err := tr.Fetch(context.Background(), srv.URL+"/api/v3/profile/AAPL?apikey=secret")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Apple Inc.")

	_, err = tr.Fetch(context.Background(), srv.URL+"/api/v3/profile/NONE?apikey=secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrEmptyResult))
	assert.NotContains(t, err.Error(), "secret")
}

func TestTransportNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := NewTransport(xhttp.NewClient(), logger.NewNop())
	_, err := tr.Fetch(context.Background(), url+"/api/v3/profile/AAPL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTransport))
}
