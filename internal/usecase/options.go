package usecase

import (
	"time"

	"FMPull/internal/domain/models"
)

// DefaultStartDate is the process-wide lower bound when nothing else applies.
var DefaultStartDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options is the immutable configuration shared by the fan-out and the collector.
type Options struct {
	DefaultStart time.Time
	Mandatory    []string
	Restricted   bool
	Fallback     FallbackPolicy
	Now          func() time.Time
}

func (o Options) withDefaults(cat *models.Catalogue) Options {
	if o.DefaultStart.IsZero() {
		o.DefaultStart = DefaultStartDate
	}
	if o.Mandatory == nil {
		o.Mandatory = cat.Mandatory()
	}
	if o.Fallback.kinds == nil {
		o.Fallback = DefaultFallbackPolicy()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// FallbackPolicy lists the failure kinds of a quarterly Job that trigger
// the annual retry in auto period mode.
type FallbackPolicy struct {
	kinds map[models.FailureKind]bool
}

func NewFallbackPolicy(kinds ...models.FailureKind) FallbackPolicy {
	p := FallbackPolicy{kinds: make(map[models.FailureKind]bool, len(kinds))}
	for _, k := range kinds {
		p.kinds[k] = true
	}
	return p
}

// DefaultFallbackPolicy falls back on explicit "no data" answers only.
func DefaultFallbackPolicy() FallbackPolicy {
	return NewFallbackPolicy(models.FailureEmpty, models.FailureUpstream)
}

func (p FallbackPolicy) Allows(kind models.FailureKind) bool {
	return kind != "" && p.kinds[kind]
}
