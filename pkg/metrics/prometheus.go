package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FMPull/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	jobsSubmitted  *prometheus.CounterVec
	jobOutcomes    *prometheus.CounterVec
	fallbacks      *prometheus.CounterVec
	removedSymbols prometheus.Counter
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the collectors on reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmpull_jobs_submitted_total",
				Help: "Total number of jobs submitted per execution strategy and series",
			},
			[]string{"strategy", "series"},
		),
		jobOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmpull_job_outcomes_total",
				Help: "Collected job outcomes by series and failure kind (ok for records)",
			},
			[]string{"series", "kind"},
		),
		fallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmpull_period_fallbacks_total",
				Help: "Annual fallback jobs issued after a failed quarterly job",
			},
			[]string{"series"},
		),
		removedSymbols: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fmpull_removed_symbols_total",
				Help: "Symbols pruned for missing a mandatory series",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fmpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordJobSubmitted(strategy, series string) {
	r.jobsSubmitted.WithLabelValues(strategy, series).Inc()
}

// RecordOutcome counts one collected outcome. An empty kind means success.
func (r *Recorder) RecordOutcome(series string, kind models.FailureKind) {
	label := string(kind)
	if label == "" {
		label = "ok"
	}
	r.jobOutcomes.WithLabelValues(series, label).Inc()
}

func (r *Recorder) RecordFallback(series string) {
	r.fallbacks.WithLabelValues(series).Inc()
}

func (r *Recorder) RecordRemovedSymbols(n int) {
	r.removedSymbols.Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
