// Package metrics exposes Prometheus instruments for runs and source fetches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opensource-finance/settle/internal/domain"
)

// Metrics provides observability for the settlement pipeline.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Completed runs by completeness ("complete" or "partial")
	Runs *prometheus.CounterVec

	// Full run latency
	RunLatency prometheus.Histogram

	// Alerts raised by type and severity
	Alerts *prometheus.CounterVec

	// Records dropped by the normalizer by reason
	Skipped *prometheus.CounterVec

	// Source fetch latency and failures by source
	FetchLatency  *prometheus.HistogramVec
	FetchFailures *prometheus.CounterVec
}

// New registers every metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_runs_total",
			Help: "Total settlement runs by completeness",
		}, []string{"completeness"}),

		RunLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "settle_run_duration_seconds",
			Help:    "Duration of a full settlement run",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_alerts_total",
			Help: "Alerts raised by type and severity",
		}, []string{"type", "severity"}),

		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_skipped_records_total",
			Help: "Order records the normalizer could not use, by reason",
		}, []string{"reason"}),

		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_source_fetch_duration_seconds",
			Help:    "Duration of source fetches",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_source_fetch_failures_total",
			Help: "Failed source fetches",
		}, []string{"source"}),
	}
}

// ObserveRun records a finished run: completeness, latency, alerts and
// skipped records.
func (m *Metrics) ObserveRun(run *domain.Run, d time.Duration) {
	if m == nil || run == nil {
		return
	}
	completeness := "complete"
	if run.Partial {
		completeness = "partial"
	}
	m.Runs.WithLabelValues(completeness).Inc()
	m.RunLatency.Observe(d.Seconds())
	for _, a := range run.Alerts {
		m.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	for reason, n := range run.Skipped.Reasons {
		m.Skipped.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source domain.Source, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchLatency.WithLabelValues(string(source)).Observe(d.Seconds())
	if err != nil {
		m.FetchFailures.WithLabelValues(string(source)).Inc()
	}
}

// RegisterCache exposes a local cache's statistics, read from stats at
// scrape time.
func RegisterCache(reg prometheus.Registerer, stats func() domain.CacheStats) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "settle_cache_entries",
		Help: "Entries held by the local cache",
	}, func() float64 { return float64(stats().Size) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "settle_cache_hits_total",
		Help: "Local cache hits",
	}, func() float64 { return float64(stats().Hits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "settle_cache_misses_total",
		Help: "Local cache misses",
	}, func() float64 { return float64(stats().Misses) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "settle_cache_evictions_total",
		Help: "Entries evicted from the local cache for capacity",
	}, func() float64 { return float64(stats().Evictions) })
}
