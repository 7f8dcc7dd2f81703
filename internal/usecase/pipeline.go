package usecase

import (
	"context"
	"fmt"

	"FMPull/internal/domain/models"
	drepo "FMPull/internal/domain/repository"
	"FMPull/pkg/logger"
)

// Pipeline runs fan-out, collection and the optional publish step.
type Pipeline struct {
	fetcher   *Fetcher
	collector *Collector
	publisher drepo.Publisher
	logger    *logger.Logger
}

// NewPipeline accepts a nil publisher.
func NewPipeline(f *Fetcher, c *Collector, p drepo.Publisher, lgr *logger.Logger) *Pipeline {
	return &Pipeline{fetcher: f, collector: c, publisher: p, logger: lgr}
}

func (p *Pipeline) Run(ctx context.Context, req FetchRequest) (*models.CleanedDataset, error) {
	batch, err := p.fetcher.FetchAll(ctx, req)
	if err != nil {
		return nil, err
	}
	p.logger.Info("batch submitted", logger.Int("jobs", batch.Len()))

	ds, err := p.collector.Collect(ctx, batch, p.fetcher.Mandatory())
	if err != nil {
		return nil, err
	}

	if p.publisher != nil && len(ds.Symbols)+len(ds.Composite) > 0 {
		if err := p.publisher.PublishDataset(ctx, ds); err != nil {
			return ds, fmt.Errorf("publish dataset: %w", err)
		}
	}
	return ds, nil
}

// Catalogue exposes the known series for listing.
func (p *Pipeline) Catalogue() *models.Catalogue { return p.fetcher.catalogue }
