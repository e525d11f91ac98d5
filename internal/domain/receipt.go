package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is a payment reported by a settlement source.
type Receipt struct {
	Source    Source    `json:"source"`
	Reference string    `json:"reference,omitempty"`
	Amount    RawAmount `json:"amount"`
	Status    string    `json:"status"`
	Date      string    `json:"date"` // creation date as reported, matched by day prefix
}

// Balance is what a settlement source owes for one window.
// Outstanding may be negative and is never clamped.
type Balance struct {
	Source           Source          `json:"source,omitempty"`
	Window           WindowKind      `json:"window"`
	NetOwed          decimal.Decimal `json:"netOwed"`
	Received         decimal.Decimal `json:"received"`
	Outstanding      decimal.Decimal `json:"outstanding"`
	ReceiptsCounted  int             `json:"receiptsCounted"`
	ReceiptsExcluded int             `json:"receiptsExcluded"`
}

// WindowKind enumerates the supported reconciliation windows.
type WindowKind string

const (
	WindowCurrent  WindowKind = "current"
	WindowPrevious WindowKind = "previous"
	WindowAll      WindowKind = "all"
)

// Window selects which period summaries and receipts feed a balance.
type Window struct {
	Kind WindowKind `json:"kind"`
}

// ParseWindow maps a request value onto a Window. Empty means current month.
func ParseWindow(s string) (Window, error) {
	switch WindowKind(s) {
	case "", WindowCurrent:
		return Window{Kind: WindowCurrent}, nil
	case WindowPrevious:
		return Window{Kind: WindowPrevious}, nil
	case WindowAll:
		return Window{Kind: WindowAll}, nil
	default:
		return Window{}, fmt.Errorf("unsupported window: %q", s)
	}
}

// Effective returns the kind the window is evaluated as. An empty or
// unrecognised kind means the current month.
func (w Window) Effective() WindowKind {
	switch w.Kind {
	case WindowAll, WindowPrevious:
		return w.Kind
	default:
		return WindowCurrent
	}
}

// Bounds returns the inclusive first and last calendar day of the window
// relative to now. bounded is false for the all-time window.
func (w Window) Bounds(now time.Time) (first, last time.Time, bounded bool) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch w.Effective() {
	case WindowAll:
		return time.Time{}, time.Time{}, false
	case WindowPrevious:
		prev := monthStart.AddDate(0, -1, 0)
		return prev, monthStart.AddDate(0, 0, -1), true
	default:
		return monthStart, monthStart.AddDate(0, 1, -1), true
	}
}
