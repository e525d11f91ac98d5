// Package reconcile matches reported receipts against computed net amounts.
package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

const dayPrefixLen = len(domain.DayKeyLayout)

// Reconcile computes what a source owes for the window.
//
// NetOwed sums the monthly summaries whose key falls in the window. Received
// sums receipts whose status is in accepted (case-insensitive) and whose
// creation day falls in the window. Outstanding is NetOwed minus Received and
// may be negative.
func Reconcile(
	monthly []domain.PeriodSummary,
	receipts []domain.Receipt,
	accepted []string,
	window domain.Window,
	now time.Time,
) domain.Balance {
	first, last, bounded := window.Bounds(now)
	firstMonth := first.Format(domain.MonthKeyLayout)
	lastMonth := last.Format(domain.MonthKeyLayout)
	firstDay := first.Format(domain.DayKeyLayout)
	lastDay := last.Format(domain.DayKeyLayout)

	b := domain.Balance{
		Window:      window.Effective(),
		NetOwed:     decimal.Zero,
		Received:    decimal.Zero,
		Outstanding: decimal.Zero,
	}

	for _, m := range monthly {
		if bounded && (m.PeriodKey < firstMonth || m.PeriodKey > lastMonth) {
			continue
		}
		b.NetOwed = b.NetOwed.Add(m.NetAmount)
	}

	for _, r := range receipts {
		if !Accepted(r.Status, accepted) {
			b.ReceiptsExcluded++
			continue
		}
		if bounded {
			day, ok := dayPrefix(r.Date)
			if !ok || day < firstDay || day > lastDay {
				b.ReceiptsExcluded++
				continue
			}
		}
		b.Received = b.Received.Add(r.Amount.OrZero())
		b.ReceiptsCounted++
	}

	b.Outstanding = b.NetOwed.Sub(b.Received)
	return b
}

// Accepted reports whether status is in the accepted set, ignoring case and
// surrounding space.
func Accepted(status string, accepted []string) bool {
	status = strings.TrimSpace(status)
	for _, a := range accepted {
		if strings.EqualFold(status, strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}

// dayPrefix returns the YYYY-MM-DD prefix of a raw creation date.
func dayPrefix(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < dayPrefixLen {
		return "", false
	}
	p := raw[:dayPrefixLen]
	if _, err := time.Parse(domain.DayKeyLayout, p); err != nil {
		return "", false
	}
	return p, true
}
