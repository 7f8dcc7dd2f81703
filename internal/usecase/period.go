package usecase

import (
	"time"

	"FMPull/internal/domain/models"
	"FMPull/pkg/util"
)

// Limits used when there is no lower bound to count periods from.
const (
	unboundedQuarterLimit = 400
	unboundedAnnualLimit  = 120
)

// PeriodResolver builds query windows. It never returns a window starting
// before start or ending after today.
type PeriodResolver struct {
	now func() time.Time
}

func NewPeriodResolver(now func() time.Time) *PeriodResolver {
	if now == nil {
		now = time.Now
	}
	return &PeriodResolver{now: now}
}

// Plan decides the windows for one series. start zero means no lower bound,
// end zero means today.
func (r *PeriodResolver) Plan(s models.SeriesDescriptor, mode models.PeriodMode, start, end time.Time) models.WindowPlan {
	today := util.Day(r.now())

	if end.IsZero() || end.After(today) {
		end = today
	}
	if start.After(today) {
		start = today
	}

	base := models.QueryWindow{Start: start, End: end}
	if !s.Periodic {
		base.Limit = s.FixedLimit
		return models.WindowPlan{Primary: base}
	}

	quarterly, annual := base, base
	quarterly.Granularity = models.GranularityQuarter
	annual.Granularity = models.GranularityAnnual
	quarterly.Limit, annual.Limit = periodLimits(start, today)

	switch mode {
	case models.PeriodQuarterly:
		return models.WindowPlan{Primary: quarterly}
	case models.PeriodAnnually:
		return models.WindowPlan{Primary: annual}
	default:
		return models.WindowPlan{Primary: quarterly, Fallback: &annual}
	}
}

// periodLimits returns 4*years+quarter and years, where years is the
// calendar-year difference. The annual limit is at least one.
func periodLimits(start, today time.Time) (quarters, years int) {
	if start.IsZero() {
		return unboundedQuarterLimit, unboundedAnnualLimit
	}
	years = util.YearsElapsed(start, today)
	quarters = 4*years + util.QuarterIndex(today)
	if years < 1 {
		years = 1
	}
	return quarters, years
}
