package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source identifies where an order or receipt came from.
type Source string

const (
	// SourceRapidPost is the COD courier that withholds tax on the seller's behalf.
	SourceRapidPost Source = "rapidpost"

	// SourceCityLink is the COD courier with a percentage fee and tax, no withholding.
	SourceCityLink Source = "citylink"

	// SourceStorefront is the storefront order feed (flat fee + commission).
	SourceStorefront Source = "storefront"
)

// Sources lists the known sources in a stable order.
func Sources() []Source {
	return []Source{SourceRapidPost, SourceCityLink, SourceStorefront}
}

// Outcome is the canonical delivery-lifecycle state of an order.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeReturned  Outcome = "returned"
	OutcomeInTransit Outcome = "in_transit"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeUnknown   Outcome = "unknown"
)

// Resolved reports whether the outcome contributes to settlement totals.
func (o Outcome) Resolved() bool {
	return o == OutcomeDelivered || o == OutcomeReturned
}

// RawAmount is a vendor amount exactly as received.
// It decodes from either a JSON number or a JSON string.
type RawAmount string

// UnmarshalJSON accepts numbers, strings and null. It never fails on content
// so one corrupted field cannot reject a whole feed.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = ""
			return nil
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(data)
	return nil
}

// Present reports whether the field carried anything at all.
func (a RawAmount) Present() bool {
	return strings.TrimSpace(string(a)) != ""
}

// Decimal parses the amount. Thousands separators and surrounding spaces are
// tolerated; anything else non-numeric yields zero and ok=false.
func (a RawAmount) Decimal() (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// OrZero returns the parsed amount or zero.
func (a RawAmount) OrZero() decimal.Decimal {
	d, _ := a.Decimal()
	return d
}

// OrderRecord is one raw order as handed over by a source adapter.
// The engine never mutates it.
type OrderRecord struct {
	Source          Source    `json:"source"`
	TrackingID      string    `json:"trackingId"`
	Status          string    `json:"status"`
	Courier         string    `json:"courier"`
	City            string    `json:"city"`
	OrderDate       string    `json:"orderDate,omitempty"`
	TransactionDate string    `json:"transactionDate,omitempty"`
	Amount          RawAmount `json:"amount"`
	UpfrontPayment  RawAmount `json:"upfrontPayment,omitempty"`

	// Vendor-reported reversal figures for returned parcels.
	ReversalFee RawAmount `json:"reversalFee,omitempty"`
	ReversalTax RawAmount `json:"reversalTax,omitempty"`
}

// NormalizedOrder is an OrderRecord mapped onto the closed Outcome model.
type NormalizedOrder struct {
	TrackingID  string          `json:"trackingId"`
	Source      Source          `json:"source"`
	City        string          `json:"city"`
	Courier     string          `json:"courier"`
	OrderDate   time.Time       `json:"orderDate"`
	Outcome     Outcome         `json:"outcome"`
	GrossAmount decimal.Decimal `json:"grossAmount"`

	DeclaredUpfront decimal.Decimal `json:"declaredUpfront"`
	ReversalFee     decimal.Decimal `json:"reversalFee"`
	ReversalTax     decimal.Decimal `json:"reversalTax"`
	HasReversal     bool            `json:"hasReversal"`
}

// CostedOrder is a NormalizedOrder with its fee model applied.
type CostedOrder struct {
	NormalizedOrder
	Fee            decimal.Decimal `json:"fee"`
	Tax            decimal.Decimal `json:"tax"`
	WithholdingTax decimal.Decimal `json:"withholdingTax"`
	UpfrontPayment decimal.Decimal `json:"upfrontPayment"`
	NetAmount      decimal.Decimal `json:"netAmount"`
}
