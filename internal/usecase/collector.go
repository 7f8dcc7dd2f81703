package usecase

import (
	"context"
	"fmt"
	"time"

	"FMPull/internal/domain/models"
	drepo "FMPull/internal/domain/repository"
	"FMPull/pkg/logger"
)

// Collector consumes a Batch into a CleanedDataset. Individual Job failures
// become missing cells or removed symbols; only structural problems are
// returned as errors.
type Collector struct {
	catalogue *models.Catalogue
	strategy  drepo.ExecutionStrategy
	fallback  FallbackPolicy
	metrics   drepo.Metrics
	logger    *logger.Logger
}

func NewCollector(cat *models.Catalogue, strategy drepo.ExecutionStrategy, fallback FallbackPolicy, m drepo.Metrics, lgr *logger.Logger) *Collector {
	return &Collector{catalogue: cat, strategy: strategy, fallback: fallback, metrics: m, logger: lgr}
}

// Collect resolves every handle in batch exactly once. A symbol failing any
// series in mandatory is dropped from every series of the result.
func (c *Collector) Collect(ctx context.Context, batch *models.Batch, mandatory []string) (*models.CleanedDataset, error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: nil batch", models.ErrMalformedBatch)
	}
	if err := batch.MarkCollected(); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { c.metrics.RecordLatency("collect", time.Since(started).Seconds()) }()

	isMandatory := make(map[string]bool, len(mandatory))
	for _, s := range mandatory {
		isMandatory[s] = true
	}

	ds := &models.CleanedDataset{
		Series:    make(map[string]map[string]*models.Record),
		Composite: make(map[string]*models.Frame),
	}
	summary := models.Summary{
		Removed:   make(map[string][]string),
		Failures:  make(map[models.FailureKind]int),
		Fallbacks: batch.Fallbacks(),
	}

	order := batch.Series()
	descs := make([]models.SeriesDescriptor, len(order))
	for i, name := range order {
		desc, err := c.catalogue.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedBatch, err)
		}
		descs[i] = desc
	}

	pending, err := c.collectPrimaries(ctx, batch, descs)
	if err != nil {
		return nil, err
	}

	var symbols []string
	seen := make(map[string]bool)

	for i, desc := range descs {
		name := desc.Name
		keys := batch.Keys(name)

		cells := make(map[string]*models.Record, len(keys))
		for _, key := range keys {
			p := pending[name][key]
			out := p.out
			if p.fallback != nil {
				if out, err = c.strategy.Collect(ctx, p.fallback); err != nil {
					releaseAll(ctx, pending)
					return nil, fmt.Errorf("collect fallback %s/%s: %w", name, key, err)
				}
				summary.Fallbacks++
			}
			c.metrics.RecordOutcome(name, out.Kind())

			if !desc.Composite() && !seen[key] {
				seen[key] = true
				symbols = append(symbols, key)
			}

			if !out.OK() {
				summary.Failures[out.Kind()]++
				c.logger.Debug("job failed",
					logger.String("series", name),
					logger.String("key", key),
					logger.Error(out.Failure))
				if isMandatory[name] && !desc.Composite() {
					summary.Removed[key] = append(summary.Removed[key], name)
				}
				cells[key] = nil
				continue
			}
			cells[key] = out.Record
		}

		c.logger.Info("series collected",
			logger.String("series", name),
			logger.Int("done", i+1),
			logger.Int("of", len(order)),
			logger.Int("jobs", len(keys)))

		if desc.Composite() {
			frames := make(map[string]*models.Frame, len(cells))
			for label, rec := range cells {
				if rec != nil {
					frames[label] = rec.Frame
				}
			}
			ds.Composite[name] = MergeComposite(name, keys, frames)
		} else {
			ds.Series[name] = cells
		}
		ds.SeriesOrder = append(ds.SeriesOrder, name)
	}

	for _, sym := range symbols {
		if _, removed := summary.Removed[sym]; removed {
			continue
		}
		ds.Symbols = append(ds.Symbols, sym)
	}

	// Every symbol series ends up keyed by exactly ds.Symbols.
	for name, cells := range ds.Series {
		pruned := make(map[string]*models.Record, len(ds.Symbols))
		for _, sym := range ds.Symbols {
			pruned[sym] = cells[sym]
		}
		ds.Series[name] = pruned
	}

	summary.ProcessedSymbols = len(symbols)
	summary.ProcessedSeries = len(ds.SeriesOrder)
	summary.RemovedSymbols = len(summary.Removed)
	summary.RemainingSymbols = len(ds.Symbols)
	ds.Summary = summary

	c.metrics.RecordRemovedSymbols(summary.RemovedSymbols)
	c.report(summary)
	return ds, nil
}

type collected struct {
	out      models.Outcome
	fallback *models.Handle
}

// collectPrimaries resolves every primary handle and submits each eligible
// annual fallback without waiting on it, so fallbacks run side by side.
func (c *Collector) collectPrimaries(ctx context.Context, batch *models.Batch, descs []models.SeriesDescriptor) (map[string]map[string]collected, error) {
	pending := make(map[string]map[string]collected, len(descs))
	for _, desc := range descs {
		keys := batch.Keys(desc.Name)
		row := make(map[string]collected, len(keys))
		pending[desc.Name] = row

		for _, key := range keys {
			e, _ := batch.Entry(desc.Name, key)
			out, err := c.strategy.Collect(ctx, e.Handle)
			if err != nil {
				releaseAll(ctx, pending)
				_ = batch.Release(context.WithoutCancel(ctx))
				return nil, fmt.Errorf("collect %s/%s: %w", desc.Name, key, err)
			}
			if out.OK() || e.Fallback == nil || !c.fallback.Allows(out.Kind()) {
				row[key] = collected{out: out}
				continue
			}

			c.logger.Warn("quarterly data unavailable, falling back to annual",
				logger.String("series", desc.Name),
				logger.String("key", key),
				logger.String("kind", string(out.Kind())))
			c.metrics.RecordFallback(desc.Name)

			h, err := c.strategy.Submit(ctx, *e.Fallback)
			if err != nil {
				releaseAll(ctx, pending)
				_ = batch.Release(context.WithoutCancel(ctx))
				return nil, fmt.Errorf("submit fallback %s/%s: %w", desc.Name, key, err)
			}
			row[key] = collected{out: out, fallback: h}
		}
	}
	return pending, nil
}

// releaseAll drops fallback handles that were submitted but not read.
func releaseAll(ctx context.Context, pending map[string]map[string]collected) {
	for _, row := range pending {
		for _, p := range row {
			if p.fallback != nil {
				_ = p.fallback.Release(context.WithoutCancel(ctx))
			}
		}
	}
}

func (c *Collector) report(s models.Summary) {
	c.logger.Info("batch collected",
		logger.Int("processed_symbols", s.ProcessedSymbols),
		logger.Int("processed_series", s.ProcessedSeries),
		logger.Int("removed_symbols", s.RemovedSymbols),
		logger.Int("remaining_symbols", s.RemainingSymbols),
		logger.Int("fallbacks", s.Fallbacks),
		logger.Any("failures", s.Failures))
	for sym, series := range s.Removed {
		c.logger.Warn("symbol removed, mandatory series missing",
			logger.String("symbol", sym),
			logger.Strings("series", series))
	}
}
