package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FMPull/internal/domain/models"
	drepo "FMPull/internal/domain/repository"
	"FMPull/internal/service/fmp"
	"FMPull/pkg/logger"
	"FMPull/pkg/util"
)

// FetchRequest is a caller's download request. Dates are YYYY-MM-DD; Start
// also accepts "false" or "none" to send no lower bound at all.
type FetchRequest struct {
	Symbols    []string `json:"symbols"`
	Series     []string `json:"series"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Period     string   `json:"period"`
	PricesOnly bool     `json:"prices_only"`
}

// Fetcher fans a request out into one Job per (series, key) and returns the
// Batch of handles without waiting on them.
type Fetcher struct {
	catalogue *models.Catalogue
	strategy  drepo.ExecutionStrategy
	dates     *StartDateResolver
	periods   *PeriodResolver
	urls      *fmp.URLBuilder
	opts      Options
	metrics   drepo.Metrics
	logger    *logger.Logger
}

// NewFetcher wires the fan-out. store may be nil.
func NewFetcher(
	cat *models.Catalogue,
	strategy drepo.ExecutionStrategy,
	store drepo.StartDateStore,
	urls *fmp.URLBuilder,
	opts Options,
	m drepo.Metrics,
	lgr *logger.Logger,
) *Fetcher {
	opts = opts.withDefaults(cat)
	return &Fetcher{
		catalogue: cat,
		strategy:  strategy,
		dates:     NewStartDateResolver(store, opts.DefaultStart, lgr),
		periods:   NewPeriodResolver(opts.Now),
		urls:      urls,
		opts:      opts,
		metrics:   m,
		logger:    lgr,
	}
}

// Mandatory returns the series whose failure removes a symbol.
func (f *Fetcher) Mandatory() []string { return append([]string(nil), f.opts.Mandatory...) }

// Fallback returns the policy used for annual retries.
func (f *Fetcher) Fallback() FallbackPolicy { return f.opts.Fallback }

type plannedRequest struct {
	symbols []string
	series  []models.SeriesDescriptor
	start   models.StartDate
	end     time.Time
	mode    models.PeriodMode
}

// plan validates the whole request before any Job is submitted.
func (f *Fetcher) plan(req FetchRequest) (*plannedRequest, error) {
	start, err := models.ParseStartDate(req.Start)
	if err != nil {
		return nil, err
	}

	var end time.Time
	if req.End != "" {
		day, ok := util.ParseDay(req.End)
		if !ok {
			return nil, fmt.Errorf("%w: end %q", models.ErrInvalidDateFormat, req.End)
		}
		end = day
	}

	mode, err := models.ParsePeriodMode(req.Period)
	if err != nil {
		return nil, err
	}

	series, err := f.selectSeries(req)
	if err != nil {
		return nil, err
	}

	symbols := util.UniqueStrings(req.Symbols)
	if len(symbols) == 0 {
		for _, s := range series {
			if !s.Composite() {
				return nil, models.ErrNoSymbols
			}
		}
	}

	return &plannedRequest{symbols: symbols, series: series, start: start, end: end, mode: mode}, nil
}

func (f *Fetcher) selectSeries(req FetchRequest) ([]models.SeriesDescriptor, error) {
	var names []string
	explicit := make(map[string]bool)
	switch {
	case req.PricesOnly:
		names = []string{models.SeriesPrices}
		explicit[models.SeriesPrices] = true
	case len(req.Series) > 0:
		for _, n := range req.Series {
			explicit[n] = true
		}
		names = append(append([]string(nil), f.opts.Mandatory...), req.Series...)
	default:
		names = append(append([]string(nil), f.opts.Mandatory...), models.DefaultSelection()...)
	}

	var out []models.SeriesDescriptor
	for _, n := range util.UniqueStrings(names) {
		s, err := f.catalogue.Lookup(n)
		if err != nil {
			return nil, err
		}
		if s.Premium && f.opts.Restricted {
			if explicit[n] {
				return nil, fmt.Errorf("%w: %s", models.ErrAccessRestricted, n)
			}
			f.logger.Warn("skipping series unavailable on this account", logger.String("series", n))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// FetchAll validates req, then submits every Job. Input errors are returned
// before anything is submitted; per-Job failures live in the handles.
func (f *Fetcher) FetchAll(ctx context.Context, req FetchRequest) (*models.Batch, error) {
	p, err := f.plan(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { f.metrics.RecordLatency("fetch_all", time.Since(started).Seconds()) }()

	batch := models.NewBatch()
	for _, s := range p.series {
		keys := s.Keys(p.symbols)
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				f.abandon(ctx, batch)
				return nil, err
			}
			entry, err := f.submit(ctx, s, key, p, batch)
			if err != nil {
				f.abandon(ctx, batch)
				return nil, err
			}
			if err := batch.Add(s.Name, key, entry); err != nil {
				_ = entry.Handle.Release(context.WithoutCancel(ctx))
				f.abandon(ctx, batch)
				return nil, err
			}
		}
		f.logger.Info("series submitted",
			logger.String("series", s.Name),
			logger.Int("jobs", len(keys)),
			logger.String("strategy", f.strategy.Name()))
	}
	return batch, nil
}

// abandon releases what a failed fan-out already submitted.
func (f *Fetcher) abandon(ctx context.Context, batch *models.Batch) {
	if batch.Len() == 0 {
		return
	}
	if err := batch.Release(context.WithoutCancel(ctx)); err != nil {
		f.logger.Warn("release submitted jobs", logger.Error(err))
	}
	f.logger.Warn("fan-out aborted, submitted jobs released", logger.Int("jobs", batch.Len()))
}

func (f *Fetcher) submit(ctx context.Context, s models.SeriesDescriptor, key string, p *plannedRequest, batch *models.Batch) (models.Entry, error) {
	start := f.dates.Resolve(ctx, s.Name, key, p.start)
	plan := f.periods.Plan(s, p.mode, start, p.end)

	job, err := f.newJob(s, key, plan.Primary)
	if err != nil {
		return models.Entry{}, err
	}
	h, err := f.strategy.Submit(ctx, job)
	if err != nil {
		return models.Entry{}, fmt.Errorf("submit %s/%s: %w", s.Name, key, err)
	}
	if plan.Fallback == nil {
		return models.Entry{Handle: h}, nil
	}

	fb, err := f.newJob(s, key, *plan.Fallback)
	if err != nil {
		_ = h.Release(context.WithoutCancel(ctx))
		return models.Entry{}, err
	}
	if !h.Resolved() {
		return models.Entry{Handle: h, Fallback: &fb}, nil
	}

	out := h.Peek()
	if out.OK() || !f.opts.Fallback.Allows(out.Kind()) {
		return models.Entry{Handle: h}, nil
	}

	if _, err := f.strategy.Collect(ctx, h); err != nil {
		return models.Entry{}, err
	}
	f.logger.Warn("quarterly data unavailable, falling back to annual",
		logger.String("series", s.Name),
		logger.String("key", key),
		logger.String("kind", string(out.Kind())))
	fh, err := f.strategy.Submit(ctx, fb)
	if err != nil {
		return models.Entry{}, fmt.Errorf("submit fallback %s/%s: %w", s.Name, key, err)
	}
	f.metrics.RecordFallback(s.Name)
	batch.NoteFallback()
	return models.Entry{Handle: fh}, nil
}

func (f *Fetcher) newJob(s models.SeriesDescriptor, key string, w models.QueryWindow) (models.Job, error) {
	u, err := f.urls.Build(s, key, w)
	if err != nil {
		return models.Job{}, err
	}
	job := models.Job{
		ID:          uuid.NewString(),
		URL:         u,
		Series:      s.Name,
		Key:         key,
		Window:      w,
		Shape:       s.Shape,
		Pages:       s.Pages,
		DateField:   s.DateField,
		SubmittedAt: time.Now(),
	}
	if !s.Composite() {
		job.Symbol = key
	}
	return job, nil
}
