package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	je := NewJobError(FailureEmpty, "https://x?apikey=***", "no rows", nil)
	assert.Equal(t, FailureEmpty, KindOf(je))
	assert.Equal(t, FailureEmpty, KindOf(fmt.Errorf("wrapped: %w", je)))
	assert.Equal(t, FailureUpstream, KindOf(fmt.Errorf("x: %w", ErrUpstream)))
	assert.Equal(t, FailureTransport, KindOf(errors.New("connection reset")))

	assert.ErrorIs(t, je, ErrEmptyResult)
	assert.True(t, IsRequestFailed(je))
	assert.False(t, IsRetryable(je))

	exhausted := NewJobError(FailureExhausted, "", "gave up", NewJobError(FailureTransport, "", "timeout", nil))
	assert.False(t, IsRetryable(exhausted))
	assert.Equal(t, "exhausted: gave up", exhausted.Error())
	assert.Equal(t, "empty: no rows (https://x?apikey=***)", je.Error())
}

func TestParseFailureKind(t *testing.T) {
	k, err := ParseFailureKind("restricted")
	require.NoError(t, err)
	assert.Equal(t, FailureRestricted, k)

	_, err = ParseFailureKind("Empty")
	assert.Error(t, err)
}

type stubAwaiter struct {
	calls int
	out   Outcome
}

func (s *stubAwaiter) Await(context.Context) (Outcome, error) {
	s.calls++
	return s.out, nil
}

func TestHandleCollectsOnce(t *testing.T) {
	aw := &stubAwaiter{out: Succeeded(&Record{Object: Row{"symbol": "AAPL"}})}
	h := NewPendingHandle(Job{Series: "profile", Key: "AAPL"}, aw)
	assert.False(t, h.Resolved())

	out, err := h.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, 1, aw.calls)

	_, err = h.Collect(context.Background())
	assert.ErrorIs(t, err, ErrHandleCollected)
	assert.Equal(t, 1, aw.calls)
}

func TestPendingHandleWithoutAwaiter(t *testing.T) {
	h := NewPendingHandle(Job{}, nil)
	_, err := h.Collect(context.Background())
	assert.ErrorIs(t, err, ErrMalformedBatch)
}

func TestBatchOrderAndValidation(t *testing.T) {
	b := NewBatch()
	resolved := func() *Handle { return NewResolvedHandle(Job{}, Succeeded(&Record{})) }

	require.NoError(t, b.Add("prices", "MSFT", Entry{Handle: resolved()}))
	require.NoError(t, b.Add("prices", "AAPL", Entry{Handle: resolved()}))
	require.NoError(t, b.Add("profile", "AAPL", Entry{Handle: resolved()}))

	assert.ErrorIs(t, b.Add("prices", "AAPL", Entry{Handle: resolved()}), ErrMalformedBatch)
	assert.ErrorIs(t, b.Add("prices", "IBM", Entry{}), ErrMalformedBatch)

	assert.Equal(t, []string{"prices", "profile"}, b.Series())
	assert.Equal(t, []string{"MSFT", "AAPL"}, b.Keys("prices"))
	assert.Equal(t, 3, b.Len())

	require.NoError(t, b.MarkCollected())
	assert.ErrorIs(t, b.MarkCollected(), ErrBatchCollected)
}

func TestParseStartDate(t *testing.T) {
	s, err := ParseStartDate("")
	require.NoError(t, err)
	assert.True(t, s.Unspecified())

	s, err = ParseStartDate("None")
	require.NoError(t, err)
	assert.True(t, s.Unbounded())

	s, err = ParseStartDate("2021-03-04")
	require.NoError(t, err)
	day, ok := s.Explicit()
	assert.True(t, ok)
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, "2021-03-04", s.String())

	_, err = ParseStartDate("04/03/2021")
	assert.ErrorIs(t, err, ErrInvalidDateFormat)
}

func TestCatalogue(t *testing.T) {
	_, err := NewCatalogue(SeriesDescriptor{Name: "a", Path: "/a"}, SeriesDescriptor{Name: "a", Path: "/b"})
	assert.Error(t, err)

	cat := DefaultCatalogue()
	_, err = cat.Lookup("no-such-series")
	assert.ErrorIs(t, err, ErrUnknownSeries)

	for _, name := range cat.Mandatory() {
		s, err := cat.Lookup(name)
		require.NoError(t, err)
		assert.True(t, s.Mandatory)
	}
	for _, name := range DefaultSelection() {
		_, err := cat.Lookup(name)
		assert.NoError(t, err, name)
	}
}

func TestNewFrameOrdersDateFirst(t *testing.T) {
	f := NewFrame([]Row{{"revenue": 1, "date": "2024-01-01"}, {"ebit": 2}})
	assert.Equal(t, []string{"date", "ebit", "revenue"}, f.Columns)
	assert.Equal(t, []any{1, nil}, f.Column("revenue"))
	assert.Equal(t, 2, f.Len())
}

type releasingAwaiter struct {
	stubAwaiter
	released int
}

func (r *releasingAwaiter) Release(context.Context) error {
	r.released++
	return nil
}

func TestBatchReleaseSkipsCollectedHandles(t *testing.T) {
	ctx := context.Background()
	pending := &releasingAwaiter{}
	read := &releasingAwaiter{stubAwaiter: stubAwaiter{out: Succeeded(&Record{})}}

	b := NewBatch()
	require.NoError(t, b.Add("prices", "A", Entry{Handle: NewPendingHandle(Job{}, pending)}))
	readHandle := NewPendingHandle(Job{}, read)
	require.NoError(t, b.Add("prices", "B", Entry{Handle: readHandle}))
	require.NoError(t, b.Add("prices", "C", Entry{Handle: NewResolvedHandle(Job{}, Succeeded(&Record{}))}))

	_, err := readHandle.Collect(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx))
	assert.Equal(t, 1, pending.released)
	assert.Zero(t, read.released)
	assert.Zero(t, pending.calls)

	e, _ := b.Entry("prices", "A")
	_, err = e.Handle.Collect(ctx)
	assert.ErrorIs(t, err, ErrHandleCollected)
}
