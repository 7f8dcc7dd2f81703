package executor

import (
	"context"
	"time"

	"FMPull/internal/domain/models"
	"FMPull/internal/domain/repository"
	"FMPull/internal/service/fmp"
	"FMPull/pkg/logger"
)

const StrategyDirect = "direct"

// Direct fetches inline through the retry policy. Handles come back resolved.
type Direct struct {
	fetcher fmp.Fetcher
	metrics repository.Metrics
	logger  *logger.Logger
}

// NewDirect expects fetcher to already carry the retry policy.
func NewDirect(fetcher fmp.Fetcher, m repository.Metrics, lgr *logger.Logger) *Direct {
	return &Direct{fetcher: fetcher, metrics: m, logger: lgr}
}

func (d *Direct) Name() string { return StrategyDirect }

func (d *Direct) Submit(ctx context.Context, job models.Job) (*models.Handle, error) {
	d.metrics.RecordJobSubmitted(StrategyDirect, job.Series)

	start := time.Now()
	payload, err := fmp.FetchPages(ctx, d.fetcher, job.URL, job.Pages)
	d.metrics.RecordLatency("fetch_direct", time.Since(start).Seconds())

	return models.NewResolvedHandle(job, outcomeOf(job, payload, err)), nil
}

func (d *Direct) Collect(ctx context.Context, h *models.Handle) (models.Outcome, error) {
	return h.Collect(ctx)
}
