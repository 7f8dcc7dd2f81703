package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FMPull/internal/domain/models"
	drepo "FMPull/internal/domain/repository"
	"FMPull/internal/service/executor"
	"FMPull/internal/service/fmp"
	"FMPull/pkg/logger"
	"FMPull/pkg/metrics"
	"FMPull/pkg/queue"
)

var today = time.Date(2024, time.May, 15, 13, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return today }

// fakeUpstream answers by endpoint path. Stubbed failures match a path
// fragment and a symbol, optionally only for quarterly requests.
type fakeUpstream struct {
	mu    sync.Mutex
	calls []*url.URL
	rules []failRule
}

type failRule struct {
	fragment    string
	symbol      string
	kind        models.FailureKind
	quarterOnly bool
}

func newFakeUpstream() *fakeUpstream { return &fakeUpstream{} }

func (f *fakeUpstream) failOn(fragment, symbol string, kind models.FailureKind) {
	f.rules = append(f.rules, failRule{fragment: fragment, symbol: symbol, kind: kind})
}

func (f *fakeUpstream) failQuarterlyOn(fragment, symbol string, kind models.FailureKind) {
	f.rules = append(f.rules, failRule{fragment: fragment, symbol: symbol, kind: kind, quarterOnly: true})
}

func (f *fakeUpstream) Fetch(_ context.Context, raw string) (json.RawMessage, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()

	sym := u.Path[strings.LastIndex(u.Path, "/")+1:]
	quarterly := u.Query().Get("period") == "quarter"
	for _, r := range f.rules {
		if strings.Contains(u.Path, r.fragment) && r.symbol == sym && (quarterly || !r.quarterOnly) {
			return nil, models.NewJobError(r.kind, raw, "stubbed failure", nil)
		}
	}

	switch {
	case strings.Contains(u.Path, "historical-price-full"):
		return json.RawMessage(`{"symbol":"` + sym + `","historical":[{"date":"2024-01-02","close":1.5}]}`), nil
	case strings.Contains(u.Path, "profile"):
		return json.RawMessage(`[{"symbol":"` + sym + `","companyName":"x"}]`), nil
	case strings.Contains(u.Path, "economic"):
		return json.RawMessage(`[{"date":"2024-01-01","value":` + `1.25}]`), nil
	default:
		return json.RawMessage(`[{"date":"2023-12-31","revenue":10}]`), nil
	}
}

// callsTo counts requests whose path contains fragment, optionally filtered by period.
func (f *fakeUpstream) callsTo(fragment, period string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.calls {
		if strings.Contains(u.Path, fragment) && u.Query().Get("period") == period {
			n++
		}
	}
	return n
}

func (f *fakeUpstream) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	upstream  *fakeUpstream
	fetcher   *Fetcher
	collector *Collector
}

func newHarness(t *testing.T, strategy func(fmp.Fetcher, drepo.Metrics) drepo.ExecutionStrategy, store drepo.StartDateStore, opts Options) *harness {
	t.Helper()
	up := newFakeUpstream()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cat := models.DefaultCatalogue()
	urls, err := fmp.NewURLBuilder("https://fmp.test/api", "secret")
	require.NoError(t, err)

	if opts.Mandatory == nil {
		opts.Mandatory = []string{models.SeriesPrices}
	}
	opts.Now = fixedNow

	s := strategy(up, m)
	f := NewFetcher(cat, s, store, urls, opts, m, logger.NewNop())
	c := NewCollector(cat, s, f.Fallback(), m, logger.NewNop())
	return &harness{upstream: up, fetcher: f, collector: c}
}

func direct(f fmp.Fetcher, m drepo.Metrics) drepo.ExecutionStrategy {
	return executor.NewDirect(f, m, logger.NewNop())
}

func (h *harness) run(t *testing.T, req FetchRequest) *models.CleanedDataset {
	t.Helper()
	batch, err := h.fetcher.FetchAll(context.Background(), req)
	require.NoError(t, err)
	ds, err := h.collector.Collect(context.Background(), batch, h.fetcher.Mandatory())
	require.NoError(t, err)
	return ds
}

func assertSameSymbolSet(t *testing.T, ds *models.CleanedDataset) {
	t.Helper()
	for name, cells := range ds.Series {
		assert.Len(t, cells, len(ds.Symbols), "series %s", name)
		for _, sym := range ds.Symbols {
			_, ok := cells[sym]
			assert.True(t, ok, "series %s lacks %s", name, sym)
		}
	}
}

func TestFetchAllInvalidStartBeforeAnyRequest(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})

	_, err := h.fetcher.FetchAll(context.Background(), FetchRequest{
		Symbols: []string{"AAPL"},
		Start:   "invalid",
	})

	assert.ErrorIs(t, err, models.ErrInvalidDateFormat)
	assert.Zero(t, h.upstream.total())
}

func TestFetchAllInputErrors(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		req  FetchRequest
		want error
	}{
		{"bad end", Options{}, FetchRequest{Symbols: []string{"A"}, End: "2024/01/01"}, models.ErrInvalidDateFormat},
		{"bad period", Options{}, FetchRequest{Symbols: []string{"A"}, Period: "monthly"}, models.ErrInvalidPeriod},
		{"unknown series", Options{}, FetchRequest{Symbols: []string{"A"}, Series: []string{"Dividends"}}, models.ErrUnknownSeries},
		{"no symbols", Options{}, FetchRequest{Series: []string{models.SeriesIncome}}, models.ErrNoSymbols},
		{"restricted", Options{Restricted: true}, FetchRequest{Symbols: []string{"A"}, Series: []string{models.SeriesESGScores}}, models.ErrAccessRestricted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, direct, nil, tc.opts)
			_, err := h.fetcher.FetchAll(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, h.upstream.total())
		})
	}
}

func TestFetchAllCompositeNeedsNoSymbols(t *testing.T) {
	h := newHarness(t, direct, nil, Options{Mandatory: []string{}})

	ds := h.run(t, FetchRequest{Series: []string{models.SeriesHousingUS}, Start: "2020-01-01"})

	require.Contains(t, ds.Composite, models.SeriesHousingUS)
	frame := ds.Composite[models.SeriesHousingUS]
	assert.Equal(t, []string{
		"date",
		"Housing indicators US_15Y_fixed_mortgage_rate",
		"Housing indicators US_30Y_fixed_mortgage_rate",
		"Housing indicators US_NewUnits_adjS",
	}, frame.Columns)
	assert.Equal(t, 3, h.upstream.callsTo("economic", ""))
	assert.Empty(t, ds.Symbols)
}

func TestAutoModeKeepsQuarterlyWhenItSucceeds(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL"}, Series: []string{models.SeriesIncome}, Start: "2020-01-01"})

	assert.Equal(t, 1, h.upstream.callsTo("income-statement", "quarter"))
	assert.Zero(t, h.upstream.callsTo("income-statement", ""))
	assert.NotNil(t, ds.Get(models.SeriesIncome, "AAPL"))
	assert.Zero(t, ds.Summary.Fallbacks)
}

func TestAutoModeFallsBackToAnnualOnEmpty(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	h.upstream.failQuarterlyOn("income-statement", "AAPL", models.FailureEmpty)

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL"}, Series: []string{models.SeriesIncome}, Start: "2020-01-01"})

	assert.Equal(t, 1, h.upstream.callsTo("income-statement", "quarter"))
	assert.Equal(t, 1, h.upstream.callsTo("income-statement", ""))
	assert.NotNil(t, ds.Get(models.SeriesIncome, "AAPL"))
	assert.Equal(t, 1, ds.Summary.Fallbacks)
}

func TestAutoModeDoesNotFallBackOnTransport(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	h.upstream.failOn("income-statement", "AAPL", models.FailureExhausted)

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL"}, Series: []string{models.SeriesIncome}, Start: "2020-01-01"})

	assert.Zero(t, h.upstream.callsTo("income-statement", ""))
	assert.Equal(t, []string{"AAPL"}, ds.Symbols)
	assert.Nil(t, ds.Get(models.SeriesIncome, "AAPL"))
	assert.Equal(t, 1, ds.Summary.Failures[models.FailureExhausted])
}

func TestExplicitPeriodIssuesSingleWindow(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	h.upstream.failQuarterlyOn("income-statement", "AAPL", models.FailureEmpty)

	h.run(t, FetchRequest{Symbols: []string{"AAPL"}, Series: []string{models.SeriesIncome}, Period: "quarterly", Start: "2020-01-01"})

	assert.Equal(t, 1, h.upstream.callsTo("income-statement", "quarter"))
	assert.Zero(t, h.upstream.callsTo("income-statement", ""))
}

func TestMandatoryFailureRemovesSymbolEverywhere(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	h.upstream.failOn("historical-price-full", "A", models.FailureUpstream)

	ds := h.run(t, FetchRequest{
		Symbols: []string{"A", "B"},
		Series:  []string{models.SeriesPrices, models.SeriesIncome},
		Start:   "2020-01-01",
	})

	assert.Equal(t, []string{"B"}, ds.Symbols)
	assert.Equal(t, []string{models.SeriesPrices, models.SeriesIncome}, ds.SeriesOrder)
	_, kept := ds.Series[models.SeriesIncome]["A"]
	assert.False(t, kept, "A must be pruned from Income despite succeeding there")
	assert.NotNil(t, ds.Get(models.SeriesIncome, "B"))
	assert.NotNil(t, ds.Get(models.SeriesPrices, "B"))

	assert.Equal(t, 2, ds.Summary.ProcessedSymbols)
	assert.Equal(t, 1, ds.Summary.RemovedSymbols)
	assert.Equal(t, 1, ds.Summary.RemainingSymbols)
	assert.Equal(t, []string{models.SeriesPrices}, ds.Summary.Removed["A"])
	assertSameSymbolSet(t, ds)
}

func TestOptionalFailureKeepsSymbol(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	h.upstream.failOn("ratios", "A", models.FailureUpstream)

	ds := h.run(t, FetchRequest{
		Symbols: []string{"A", "B"},
		Series:  []string{models.SeriesFinancialRatios},
		Start:   "2020-01-01",
	})

	assert.Equal(t, []string{"A", "B"}, ds.Symbols)
	cell, present := ds.Series[models.SeriesFinancialRatios]["A"]
	assert.True(t, present)
	assert.Nil(t, cell)
	assert.NotNil(t, ds.Get(models.SeriesFinancialRatios, "B"))
	assertSameSymbolSet(t, ds)
}

func TestDefaultSelectionIncludesMandatory(t *testing.T) {
	h := newHarness(t, direct, nil, Options{Mandatory: []string{models.SeriesPrices, models.SeriesMetaData}})

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL", "AAPL"}, Start: "2020-01-01"})

	assert.Equal(t, models.DefaultSelection(), ds.SeriesOrder)
	assert.Equal(t, []string{"AAPL"}, ds.Symbols)
	assertSameSymbolSet(t, ds)
}

func TestPricesOnly(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL"}, PricesOnly: true, Series: []string{models.SeriesIncome}})

	assert.Equal(t, []string{models.SeriesPrices}, ds.SeriesOrder)
	assert.Equal(t, 1, h.upstream.total())
}

func TestCollectTwiceIsRejected(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	batch, err := h.fetcher.FetchAll(context.Background(), FetchRequest{Symbols: []string{"A"}, PricesOnly: true})
	require.NoError(t, err)

	_, err = h.collector.Collect(context.Background(), batch, nil)
	require.NoError(t, err)
	_, err = h.collector.Collect(context.Background(), batch, nil)
	assert.ErrorIs(t, err, models.ErrBatchCollected)

	_, err = h.collector.Collect(context.Background(), nil, nil)
	assert.ErrorIs(t, err, models.ErrMalformedBatch)
}

type stubStore struct {
	latest map[string]time.Time
	err    error
}

func (s stubStore) LatestDate(_ context.Context, series, key string) (time.Time, bool, error) {
	if s.err != nil {
		return time.Time{}, false, s.err
	}
	t, ok := s.latest[series+"/"+key]
	return t, ok, nil
}

func TestStartDateFromStore(t *testing.T) {
	store := stubStore{latest: map[string]time.Time{
		models.SeriesPrices + "/AAPL": time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	}}
	h := newHarness(t, direct, store, Options{DefaultStart: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)})

	h.run(t, FetchRequest{Symbols: []string{"AAPL", "MSFT"}, PricesOnly: true})

	from := map[string]string{}
	for _, u := range h.upstream.calls {
		from[u.Path[strings.LastIndex(u.Path, "/")+1:]] = u.Query().Get("from")
	}
	assert.Equal(t, "2024-01-11", from["AAPL"])
	assert.Equal(t, "2000-01-01", from["MSFT"])
}

func TestStartDateResolverPriority(t *testing.T) {
	def := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	store := stubStore{latest: map[string]time.Time{"Prices/A": stored}}

	r := NewStartDateResolver(store, def, logger.NewNop())
	ctx := context.Background()

	explicit := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, explicit, r.Resolve(ctx, "Prices", "A", models.StartOn(explicit)))
	assert.True(t, r.Resolve(ctx, "Prices", "A", models.NoLowerBound()).IsZero())
	assert.Equal(t, stored.AddDate(0, 0, 1), r.Resolve(ctx, "Prices", "A", models.StartDate{}))
	assert.Equal(t, def, r.Resolve(ctx, "Prices", "B", models.StartDate{}))

	failing := NewStartDateResolver(stubStore{err: errors.New("db down")}, def, logger.NewNop())
	assert.Equal(t, def, failing.Resolve(ctx, "Prices", "A", models.StartDate{}))

	none := NewStartDateResolver(nil, def, logger.NewNop())
	assert.Equal(t, def, none.Resolve(ctx, "Prices", "A", models.StartDate{}))
}

func asyncPool(t *testing.T) func(fmp.Fetcher, drepo.Metrics) drepo.ExecutionStrategy {
	return func(f fmp.Fetcher, m drepo.Metrics) drepo.ExecutionStrategy {
		pool := queue.NewWorkerPool(logger.NewNop(), &queue.QueueConfig{Workers: 4},
			executor.NewFetchJob(f, nil, logger.NewNop()))
		require.NoError(t, pool.Start())
		t.Cleanup(func() { _ = pool.Stop(context.Background()) })
		return executor.NewAsyncQueue(pool, m, logger.NewNop())
	}
}

func TestAsyncBatchYieldsOneOutcomePerHandle(t *testing.T) {
	h := newHarness(t, asyncPool(t), nil, Options{})
	h.upstream.failOn("historical-price-full", "C", models.FailureEmpty)

	symbols := []string{"A", "B", "C", "D", "E", "F"}
	batch, err := h.fetcher.FetchAll(context.Background(), FetchRequest{
		Symbols: symbols,
		Series:  []string{models.SeriesPrices, models.SeriesMetaData},
		Start:   "2020-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, batch.Len())

	ds, err := h.collector.Collect(context.Background(), batch, h.fetcher.Mandatory())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "D", "E", "F"}, ds.Symbols)
	assert.Equal(t, 6, ds.Summary.ProcessedSymbols)
	assert.Equal(t, 12, h.upstream.total())
	assertSameSymbolSet(t, ds)

	for _, name := range batch.Series() {
		for _, key := range batch.Keys(name) {
			e, _ := batch.Entry(name, key)
			_, err := e.Handle.Collect(context.Background())
			assert.ErrorIs(t, err, models.ErrHandleCollected)
		}
	}
}

func TestAsyncDeferredFallback(t *testing.T) {
	h := newHarness(t, asyncPool(t), nil, Options{})
	h.upstream.failQuarterlyOn("income-statement", "AAPL", models.FailureEmpty)

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL", "MSFT"}, Series: []string{models.SeriesIncome}, Start: "2020-01-01"})

	assert.Equal(t, 2, h.upstream.callsTo("income-statement", "quarter"))
	assert.Equal(t, 1, h.upstream.callsTo("income-statement", ""))
	assert.NotNil(t, ds.Get(models.SeriesIncome, "AAPL"))
	assert.Equal(t, 1, ds.Summary.Fallbacks)
}

type recordingPublisher struct {
	got []*models.CleanedDataset
}

func (p *recordingPublisher) PublishDataset(_ context.Context, ds *models.CleanedDataset) error {
	p.got = append(p.got, ds)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func TestPipelineRunPublishes(t *testing.T) {
	h := newHarness(t, direct, nil, Options{})
	pub := &recordingPublisher{}
	p := NewPipeline(h.fetcher, h.collector, pub, logger.NewNop())

	ds, err := p.Run(context.Background(), FetchRequest{Symbols: []string{"AAPL"}, PricesOnly: true})
	require.NoError(t, err)

	require.Len(t, pub.got, 1)
	assert.Same(t, ds, pub.got[0])

	_, err = p.Run(context.Background(), FetchRequest{Symbols: []string{"AAPL"}, Start: "01-01-2020"})
	assert.ErrorIs(t, err, models.ErrInvalidDateFormat)
	assert.Len(t, pub.got, 1)
}

func TestRestrictedAccountSkipsPremiumDefaults(t *testing.T) {
	h := newHarness(t, direct, nil, Options{
		Restricted: true,
		Mandatory:  []string{models.SeriesPrices, models.SeriesESGScores},
	})

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL"}, Start: "2020-01-01"})

	assert.Equal(t, models.DefaultSelection(), ds.SeriesOrder)
	assert.NotContains(t, ds.Series, models.SeriesESGScores)
	assert.Zero(t, h.upstream.callsTo("esg", ""))
	assert.Equal(t, []string{"AAPL"}, ds.Symbols)
}

// deferredStrategy hands out pending handles that run through inner only
// when collected, and records the order of submits and collects.
type deferredStrategy struct {
	inner  drepo.ExecutionStrategy
	failAt int

	mu       sync.Mutex
	submits  int
	events   []string
	released int
}

func (s *deferredStrategy) wire(f fmp.Fetcher, m drepo.Metrics) drepo.ExecutionStrategy {
	s.inner = direct(f, m)
	return s
}

func (s *deferredStrategy) Name() string { return "deferred" }

func (s *deferredStrategy) Submit(_ context.Context, job models.Job) (*models.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submits == s.failAt {
		return nil, errors.New("queue full")
	}
	s.events = append(s.events, "submit "+string(job.Window.Granularity))
	return models.NewPendingHandle(job, &deferredAwaiter{s: s, job: job}), nil
}

func (s *deferredStrategy) Collect(ctx context.Context, h *models.Handle) (models.Outcome, error) {
	return h.Collect(ctx)
}

type deferredAwaiter struct {
	s   *deferredStrategy
	job models.Job
}

func (a *deferredAwaiter) Await(ctx context.Context) (models.Outcome, error) {
	a.s.mu.Lock()
	a.s.events = append(a.s.events, "collect "+string(a.job.Window.Granularity))
	a.s.mu.Unlock()

	h, err := a.s.inner.Submit(ctx, a.job)
	if err != nil {
		return models.Outcome{}, err
	}
	return h.Collect(ctx)
}

func (a *deferredAwaiter) Release(context.Context) error {
	a.s.mu.Lock()
	a.s.released++
	a.s.mu.Unlock()
	return nil
}

func TestFallbacksAreSubmittedBeforeAnyIsCollected(t *testing.T) {
	s := &deferredStrategy{}
	h := newHarness(t, s.wire, nil, Options{Mandatory: []string{}})
	h.upstream.failQuarterlyOn("income-statement", "AAPL", models.FailureEmpty)
	h.upstream.failQuarterlyOn("income-statement", "MSFT", models.FailureEmpty)

	ds := h.run(t, FetchRequest{Symbols: []string{"AAPL", "MSFT"}, Series: []string{models.SeriesIncome}, Start: "2020-01-01"})

	assert.Equal(t, []string{
		"submit quarter", "submit quarter",
		"collect quarter", "collect quarter",
		"submit annual", "submit annual",
		"collect annual", "collect annual",
	}, s.events)
	assert.Equal(t, 2, ds.Summary.Fallbacks)
	assert.NotNil(t, ds.Get(models.SeriesIncome, "AAPL"))
	assert.NotNil(t, ds.Get(models.SeriesIncome, "MSFT"))
}

func TestFailedFanOutReleasesSubmittedJobs(t *testing.T) {
	s := &deferredStrategy{failAt: 3}
	h := newHarness(t, s.wire, nil, Options{})

	batch, err := h.fetcher.FetchAll(context.Background(), FetchRequest{
		Symbols:    []string{"A", "B", "C", "D"},
		PricesOnly: true,
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "queue full")
	assert.Nil(t, batch)
	assert.Equal(t, 2, s.released)
	assert.Zero(t, h.upstream.total())
}
