// Package engine runs one complete settlement pass: normalize, cost,
// aggregate, reconcile and detect.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/aggregate"
	"github.com/opensource-finance/settle/internal/alerts"
	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/fees"
	"github.com/opensource-finance/settle/internal/normalize"
	"github.com/opensource-finance/settle/internal/reconcile"
	"github.com/opensource-finance/settle/internal/rules"
)

// Version is reported in every run's metadata.
const Version = "settle-1.0"

// Processor turns a snapshot of raw records into a Run.
// It holds configuration only and is safe for concurrent use.
type Processor struct {
	Normalizer *normalize.Normalizer
	Fees       *fees.Registry
	Detector   *alerts.Detector

	// Rules evaluates custom alert rules. Nil disables them.
	Rules *rules.Engine

	// AcceptedStatuses per source; sources missing here accept nothing.
	AcceptedStatuses map[domain.Source][]string

	// Thresholds used when the input carries none.
	Thresholds domain.Thresholds
}

// NewProcessor creates a processor with the default fee table, accepted
// statuses and thresholds.
func NewProcessor() *Processor {
	return &Processor{
		Normalizer:       normalize.New(),
		Fees:             fees.Default(),
		Detector:         alerts.NewDetector(),
		AcceptedStatuses: domain.DefaultAcceptedStatuses(),
		Thresholds:       domain.DefaultThresholds(),
	}
}

// Input is everything one pass reads. Orders must already be deduplicated.
type Input struct {
	// RunID is generated when empty.
	RunID      string
	TenantID   string
	TraceID    string
	Orders     []domain.OrderRecord
	Receipts   map[domain.Source][]domain.Receipt
	Thresholds *domain.Thresholds
	Window     domain.Window
	Now        time.Time

	// Sources and Partial are copied from the intake snapshot, if any.
	Sources []domain.SourceStatus
	Partial bool
}

// Process runs every stage and never fails; malformed records end up in
// the skipped tally and empty input yields zero summaries.
func (p *Processor) Process(ctx context.Context, input *Input) *domain.Run {
	start := time.Now()

	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	window := input.Window
	if window.Kind == "" {
		window.Kind = domain.WindowCurrent
	}
	th := p.Thresholds
	if input.Thresholds != nil {
		th = *input.Thresholds
	}
	th = th.WithDefaults()

	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	run := &domain.Run{
		ID:        runID,
		TenantID:  input.TenantID,
		Window:    window.Kind,
		CreatedAt: now,
		Sources:   input.Sources,
		Partial:   input.Partial,
	}

	// Normalize
	stage := time.Now()
	normalized := p.Normalizer.Normalize(input.Orders)
	run.Skipped = normalized.Skipped
	costed := p.Fees.CostAll(normalized.Orders)
	normalizeMs := time.Since(stage).Milliseconds()

	// Aggregate
	stage = time.Now()
	run.Daily = aggregate.Aggregate(costed, domain.GranularityDay)
	run.Monthly = aggregate.RollUp(run.Daily)
	run.Totals = aggregate.Totals(run.Monthly)
	run.NetGrowth = aggregate.MonthOverMonth(costed, now, aggregate.MetricNet)
	run.OrderGrowth = aggregate.MonthOverMonth(costed, now, aggregate.MetricOrders)
	inWindow := aggregate.Filter(costed, aggregate.InWindow(window, now))
	run.Cities = aggregate.ByCity(inWindow)
	run.Weekdays = aggregate.ByWeekday(inWindow)
	aggregateMs := time.Since(stage).Milliseconds()

	// Reconcile
	stage = time.Now()
	run.Balances = p.balances(costed, input.Receipts, window, now)
	reconcileMs := time.Since(stage).Milliseconds()

	// Detect
	stage = time.Now()
	found := p.Detector.Detect(normalized.Orders, th, now)
	rulesApplied, ruleErrors := 0, 0
	if p.Rules != nil {
		rulesApplied = p.Rules.RulesCount()
		custom, err := p.Rules.Evaluate(ctx, rules.Stats(costed))
		if err != nil {
			ruleErrors = countJoined(err)
		}
		found = append(found, custom...)
		alerts.Sort(found)
	}
	run.Alerts = found
	detectMs := time.Since(stage).Milliseconds()

	receiptsIn := 0
	for _, rs := range input.Receipts {
		receiptsIn += len(rs)
	}

	run.Metadata = domain.RunMetadata{
		TraceID:       input.TraceID,
		RecordsIn:     len(input.Orders),
		ReceiptsIn:    receiptsIn,
		NormalizeMs:   normalizeMs,
		AggregateMs:   aggregateMs,
		ReconcileMs:   reconcileMs,
		DetectMs:      detectMs,
		TotalMs:       time.Since(start).Milliseconds(),
		RulesApplied:  rulesApplied,
		RuleErrors:    ruleErrors,
		EngineVersion: Version,
	}

	return run
}

// balances reconciles every known source plus any other source that shows
// up in the orders or receipts.
func (p *Processor) balances(costed []domain.CostedOrder, receipts map[domain.Source][]domain.Receipt, window domain.Window, now time.Time) []domain.Balance {
	bySource := aggregate.Partition(costed)

	seen := make(map[domain.Source]bool)
	sources := make([]domain.Source, 0, len(domain.Sources()))
	add := func(src domain.Source) {
		if !seen[src] {
			seen[src] = true
			sources = append(sources, src)
		}
	}
	for _, src := range domain.Sources() {
		add(src)
	}
	var extra []domain.Source
	for src := range bySource {
		if !seen[src] {
			extra = append(extra, src)
		}
	}
	for src := range receipts {
		if !seen[src] {
			extra = append(extra, src)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	for _, src := range extra {
		add(src)
	}

	out := make([]domain.Balance, 0, len(sources))
	for _, src := range sources {
		monthly := aggregate.Aggregate(bySource[src], domain.GranularityMonth)
		b := reconcile.Reconcile(monthly, receipts[src], p.AcceptedStatuses[src], window, now)
		b.Source = src
		out = append(out, b)
	}
	return out
}

// Actionable returns the alerts worth pushing to subscribers: critical and
// warning severities.
func Actionable(run *domain.Run) []domain.Alert {
	var out []domain.Alert
	for _, a := range run.Alerts {
		if a.Severity == domain.SeverityCritical || a.Severity == domain.SeverityWarning {
			out = append(out, a)
		}
	}
	return out
}

// TotalBalance folds per-source balances into one.
func TotalBalance(run *domain.Run) domain.Balance {
	total := domain.Balance{
		Window:      run.Window,
		NetOwed:     decimal.Zero,
		Received:    decimal.Zero,
		Outstanding: decimal.Zero,
	}
	for _, b := range run.Balances {
		total.NetOwed = total.NetOwed.Add(b.NetOwed)
		total.Received = total.Received.Add(b.Received)
		total.Outstanding = total.Outstanding.Add(b.Outstanding)
		total.ReceiptsCounted += b.ReceiptsCounted
		total.ReceiptsExcluded += b.ReceiptsExcluded
	}
	return total
}

func countJoined(err error) int {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range j.Unwrap() {
			n += countJoined(e)
		}
		return n
	}
	return 1
}
