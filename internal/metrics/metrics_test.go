package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/settle/internal/domain"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	run := &domain.Run{
		Partial: true,
		Alerts: []domain.Alert{
			{Type: domain.AlertReturnSpike, Severity: domain.SeverityWarning},
			{Type: domain.AlertReturnSpike, Severity: domain.SeverityWarning},
			{Type: domain.AlertStuckInTransit, Severity: domain.SeverityCritical},
		},
		Skipped: domain.SkippedTally{Count: 3, Reasons: map[string]int{"missing_date": 3}},
	}
	m.ObserveRun(run, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.Runs.WithLabelValues("partial")); got != 1 {
		t.Errorf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.Alerts.WithLabelValues("return_spike", "warning")); got != 2 {
		t.Errorf("expected 2 return spike warnings, got %v", got)
	}
	if got := testutil.ToFloat64(m.Skipped.WithLabelValues("missing_date")); got != 3 {
		t.Errorf("expected 3 skipped, got %v", got)
	}
}

func TestObserveFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveFetch(domain.SourceCityLink, time.Second, nil)
	m.ObserveFetch(domain.SourceCityLink, time.Second, errors.New("timeout"))

	if got := testutil.ToFloat64(m.FetchFailures.WithLabelValues("citylink")); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRun(&domain.Run{}, time.Second)
	m.ObserveFetch(domain.SourceRapidPost, time.Second, nil)
}

func TestRegisterCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := domain.CacheStats{Size: 3, Hits: 7, Misses: 2, Evictions: 1}
	RegisterCache(reg, func() domain.CacheStats { return stats })

	const expected = `
# HELP settle_cache_hits_total Local cache hits
# TYPE settle_cache_hits_total counter
settle_cache_hits_total 7
# HELP settle_cache_entries Entries held by the local cache
# TYPE settle_cache_entries gauge
settle_cache_entries 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "settle_cache_hits_total", "settle_cache_entries"); err != nil {
		t.Errorf("unexpected cache metrics: %v", err)
	}

	if n, err := testutil.GatherAndCount(reg, "settle_cache_misses_total", "settle_cache_evictions_total"); err != nil || n != 2 {
		t.Errorf("expected miss and eviction series, got %d (%v)", n, err)
	}
}
