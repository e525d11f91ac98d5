package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Run is the complete output of one reconciliation/alert pass.
type Run struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Window    WindowKind `json:"window"`
	CreatedAt time.Time  `json:"createdAt"`

	Skipped SkippedTally `json:"skipped"`

	Daily   []PeriodSummary `json:"daily"`
	Monthly []PeriodSummary `json:"monthly"`
	Totals  PeriodSummary   `json:"totals"`

	Balances []Balance `json:"balances"`
	Alerts   []Alert   `json:"alerts"`

	NetGrowth   Growth         `json:"netGrowth"`
	OrderGrowth Growth         `json:"orderGrowth"`
	Cities      []Breakdown    `json:"cities"`
	Weekdays    []Breakdown    `json:"weekdays"`
	Sources     []SourceStatus `json:"sources,omitempty"`
	Partial     bool           `json:"partial"`
	Metadata    RunMetadata    `json:"metadata"`
}

// SkippedTally counts records the normalizer had to drop, by reason.
type SkippedTally struct {
	Count   int            `json:"count"`
	Reasons map[string]int `json:"reasons,omitempty"`
}

// SourceStatus reports how fetching one source went.
type SourceStatus struct {
	Source     Source `json:"source"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	Orders     int    `json:"orders"`
	Receipts   int    `json:"receipts"`
	DurationMs int64  `json:"durationMs"`
}

// RunMetadata contains processing information.
type RunMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	RecordsIn     int    `json:"recordsIn"`
	ReceiptsIn    int    `json:"receiptsIn"`
	NormalizeMs   int64  `json:"normalizeMs"`
	AggregateMs   int64  `json:"aggregateMs"`
	ReconcileMs   int64  `json:"reconcileMs"`
	DetectMs      int64  `json:"detectMs"`
	TotalMs       int64  `json:"totalMs"`
	RulesApplied  int    `json:"rulesApplied"`
	RuleErrors    int    `json:"ruleErrors"`
	EngineVersion string `json:"engineVersion"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID         string     `json:"id"`
	Window     WindowKind `json:"window"`
	CreatedAt  time.Time  `json:"createdAt"`
	AlertCount int        `json:"alertCount"`
	Skipped    int        `json:"skipped"`
	Partial    bool       `json:"partial"`

	// Totals across all sources' balances.
	NetOwed     decimal.Decimal `json:"netOwed"`
	Outstanding decimal.Decimal `json:"outstanding"`
}
