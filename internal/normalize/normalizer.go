// Package normalize maps heterogeneous source records onto the closed
// Outcome model. It is the only place that inspects vendor status strings.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/opensource-finance/settle/internal/domain"
)

var (
	ErrMissingDate   = errors.New("missing or unparseable date")
	ErrMissingAmount = errors.New("missing amount")
)

// Skip reasons reported in the tally.
const (
	ReasonMissingDate   = "missing_date"
	ReasonMissingAmount = "missing_amount"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Result is a normalized batch.
type Result struct {
	Orders  []domain.NormalizedOrder
	Skipped domain.SkippedTally
}

// Normalizer classifies raw order records. It holds no state and is safe for
// concurrent use.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts every record it can and tallies the ones it cannot.
// Output order follows input order.
func (n *Normalizer) Normalize(records []domain.OrderRecord) Result {
	res := Result{
		Orders:  make([]domain.NormalizedOrder, 0, len(records)),
		Skipped: domain.SkippedTally{Reasons: map[string]int{}},
	}
	for _, rec := range records {
		order, err := n.NormalizeOne(rec)
		if err != nil {
			res.Skipped.Count++
			res.Skipped.Reasons[reasonFor(err)]++
			continue
		}
		res.Orders = append(res.Orders, order)
	}
	return res
}

// NormalizeOne converts a single record.
func (n *Normalizer) NormalizeOne(rec domain.OrderRecord) (domain.NormalizedOrder, error) {
	day, ok := parseDay(rec.OrderDate)
	if !ok {
		day, ok = parseDay(rec.TransactionDate)
	}
	if !ok {
		return domain.NormalizedOrder{}, fmt.Errorf("order %q: %w", rec.TrackingID, ErrMissingDate)
	}
	if !rec.Amount.Present() {
		return domain.NormalizedOrder{}, fmt.Errorf("order %q: %w", rec.TrackingID, ErrMissingAmount)
	}

	reversalFee, feeOK := rec.ReversalFee.Decimal()
	reversalTax, taxOK := rec.ReversalTax.Decimal()

	return domain.NormalizedOrder{
		TrackingID:      strings.TrimSpace(rec.TrackingID),
		Source:          rec.Source,
		City:            n.cleanLabel(rec.City),
		Courier:         courierName(rec),
		OrderDate:       day,
		Outcome:         n.Classify(rec.Source, rec.Status, rec.TrackingID),
		GrossAmount:     rec.Amount.OrZero(),
		DeclaredUpfront: rec.UpfrontPayment.OrZero(),
		ReversalFee:     reversalFee,
		ReversalTax:     reversalTax,
		HasReversal:     feeOK || taxOK,
	}, nil
}

// Classify maps a vendor status onto an Outcome. Cancellation is checked
// first so a cancelled-then-returned parcel counts once, as cancelled.
func (n *Normalizer) Classify(src domain.Source, status, trackingID string) domain.Outcome {
	s := n.foldStatus(status)
	vocab := VocabularyFor(src)

	for _, term := range vocab.Cancelled {
		if strings.Contains(s, term) {
			return domain.OutcomeCancelled
		}
	}
	for _, term := range vocab.Returned {
		if strings.Contains(s, term) {
			return domain.OutcomeReturned
		}
	}
	for _, term := range vocab.Delivered {
		if s == term || strings.HasPrefix(s, term+" ") {
			return domain.OutcomeDelivered
		}
	}
	if strings.TrimSpace(trackingID) != "" {
		return domain.OutcomeInTransit
	}
	return domain.OutcomeUnknown
}

// foldStatus case-folds and collapses separators: "Delivered_To-Customer"
// becomes "delivered to customer".
func (n *Normalizer) foldStatus(status string) string {
	// Casers are stateful, so one is built per call.
	s := cases.Fold().String(norm.NFKC.String(status))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', '.', '/', ':':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func (n *Normalizer) cleanLabel(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}

func courierName(rec domain.OrderRecord) string {
	if c := strings.TrimSpace(rec.Courier); c != "" {
		return c
	}
	return string(rec.Source)
}

// parseDay keeps the wall-clock calendar day of the timestamp and returns it
// as midnight UTC so keys do not drift across zones.
func parseDay(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrMissingDate):
		return ReasonMissingDate
	case errors.Is(err, ErrMissingAmount):
		return ReasonMissingAmount
	default:
		return "invalid"
	}
}
