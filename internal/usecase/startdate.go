package usecase

import (
	"context"
	"time"

	"FMPull/internal/domain/models"
	drepo "FMPull/internal/domain/repository"
	"FMPull/pkg/logger"
	"FMPull/pkg/util"
)

// StartDateResolver picks the lower bound for a (series, key) query:
// explicit date, explicit "no bound", the day after the latest stored date,
// then the default.
type StartDateResolver struct {
	store  drepo.StartDateStore
	def    time.Time
	logger *logger.Logger
}

// NewStartDateResolver accepts a nil store, which disables incremental lookups.
func NewStartDateResolver(store drepo.StartDateStore, def time.Time, lgr *logger.Logger) *StartDateResolver {
	return &StartDateResolver{store: store, def: util.Day(def), logger: lgr}
}

// Resolve returns the zero time for "no lower bound".
func (r *StartDateResolver) Resolve(ctx context.Context, series, key string, req models.StartDate) time.Time {
	if day, ok := req.Explicit(); ok {
		return day
	}
	if req.Unbounded() {
		return time.Time{}
	}

	if r.store != nil {
		latest, found, err := r.store.LatestDate(ctx, series, key)
		switch {
		case err != nil:
			r.logger.Warn("start date lookup failed, using default",
				logger.String("series", series),
				logger.String("key", key),
				logger.Error(err))
		case found:
			return util.Day(latest).AddDate(0, 0, 1)
		}
	}
	return r.def
}
