package repository

import (
	"context"
	"time"

	"FMPull/internal/domain/models"
)

// ExecutionStrategy issues Jobs and resolves their handles. One strategy is
// chosen at construction; business code never branches on which.
type ExecutionStrategy interface {
	Name() string
	Submit(ctx context.Context, job models.Job) (*models.Handle, error)
	Collect(ctx context.Context, h *models.Handle) (models.Outcome, error)
}

// StartDateStore returns the latest persisted date for a (series, key)
// pair. found is false when nothing is stored yet.
type StartDateStore interface {
	LatestDate(ctx context.Context, series, key string) (latest time.Time, found bool, err error)
}

// Publisher ships a cleaned dataset downstream.
type Publisher interface {
	PublishDataset(ctx context.Context, ds *models.CleanedDataset) error
	Close() error
}

type Metrics interface {
	RecordJobSubmitted(strategy, series string)
	RecordOutcome(series string, kind models.FailureKind)
	RecordFallback(series string)
	RecordRemovedSymbols(n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
