package models

import (
	"fmt"
	"strings"
	"time"

	"FMPull/pkg/util"
)

// PeriodMode is how the caller wants periodic series granularity chosen.
type PeriodMode string

const (
	PeriodAuto      PeriodMode = "auto"
	PeriodQuarterly PeriodMode = "quarterly"
	PeriodAnnually  PeriodMode = "annually"
)

func ParsePeriodMode(s string) (PeriodMode, error) {
	switch m := PeriodMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return PeriodAuto, nil
	case PeriodAuto, PeriodQuarterly, PeriodAnnually:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

type Granularity string

const (
	GranularityNone    Granularity = ""
	GranularityQuarter Granularity = "quarter"
	GranularityAnnual  Granularity = "annual"
)

// QueryWindow bounds one request. Zero times mean unbounded, zero Limit means none.
type QueryWindow struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
	Limit       int
}

func (w QueryWindow) String() string {
	s := fmt.Sprintf("[%s..%s]", util.FormatDay(w.Start), util.FormatDay(w.End))
	if w.Granularity != GranularityNone {
		s += " " + string(w.Granularity)
	}
	if w.Limit > 0 {
		s += fmt.Sprintf(" limit=%d", w.Limit)
	}
	return s
}

// WindowPlan is the period decision for one (series, key): a primary window
// and, in auto mode, the annual window to use when the primary fails.
type WindowPlan struct {
	Primary  QueryWindow
	Fallback *QueryWindow
}

type startKind int

const (
	startUnspecified startKind = iota
	startExplicit
	startUnbounded
)

// StartDate is the caller's lower-bound request. The zero value means
// "not specified": look it up in the store, then use the default.
type StartDate struct {
	kind startKind
	day  time.Time
}

func StartOn(day time.Time) StartDate {
	return StartDate{kind: startExplicit, day: util.Day(day)}
}

// NoLowerBound sends no start date. Periodic series then use the
// unbounded limits; FMP answers daily prices with its own five-year window.
func NoLowerBound() StartDate { return StartDate{kind: startUnbounded} }

// ParseStartDate maps caller input: "" is unspecified, "false" or "none"
// is no lower bound, everything else must be YYYY-MM-DD.
func ParseStartDate(s string) (StartDate, error) {
	switch strings.ToLower(s) {
	case "":
		return StartDate{}, nil
	case "false", "none":
		return NoLowerBound(), nil
	}
	day, ok := util.ParseDay(s)
	if !ok {
		return StartDate{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return StartOn(day), nil
}

func (s StartDate) Explicit() (time.Time, bool) { return s.day, s.kind == startExplicit }
func (s StartDate) Unbounded() bool              { return s.kind == startUnbounded }
func (s StartDate) Unspecified() bool            { return s.kind == startUnspecified }

func (s StartDate) String() string {
	switch s.kind {
	case startExplicit:
		return util.FormatDay(s.day)
	case startUnbounded:
		return "none"
	}
	return "auto"
}
