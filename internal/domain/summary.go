package domain

import "github.com/shopspring/decimal"

// Granularity selects the period bucket used by the aggregator.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// UnknownCity labels orders that arrived without a city.
const UnknownCity = "Unknown"

// Period key layouts.
const (
	DayKeyLayout   = "2006-01-02"
	MonthKeyLayout = "2006-01"
)

// PeriodSummary is the settlement fold of every order in one day or month.
type PeriodSummary struct {
	PeriodKey       string          `json:"periodKey"`
	TotalOrders     int             `json:"totalOrders"`
	DeliveredOrders int             `json:"deliveredOrders"`
	ReturnedOrders  int             `json:"returnedOrders"`
	InTransitOrders int             `json:"inTransitOrders"`
	CancelledOrders int             `json:"cancelledOrders"`
	GrossAmount     decimal.Decimal `json:"grossAmount"`
	Fees            decimal.Decimal `json:"fees"`
	Taxes           decimal.Decimal `json:"taxes"`
	WithholdingTax  decimal.Decimal `json:"withholdingTax"`
	UpfrontPayments decimal.Decimal `json:"upfrontPayments"`
	NetAmount       decimal.Decimal `json:"netAmount"`
}

// Add returns the field-wise sum of s and o keyed as s.
// Add is associative and commutative on every numeric field.
func (s PeriodSummary) Add(o PeriodSummary) PeriodSummary {
	return PeriodSummary{
		PeriodKey:       s.PeriodKey,
		TotalOrders:     s.TotalOrders + o.TotalOrders,
		DeliveredOrders: s.DeliveredOrders + o.DeliveredOrders,
		ReturnedOrders:  s.ReturnedOrders + o.ReturnedOrders,
		InTransitOrders: s.InTransitOrders + o.InTransitOrders,
		CancelledOrders: s.CancelledOrders + o.CancelledOrders,
		GrossAmount:     s.GrossAmount.Add(o.GrossAmount),
		Fees:            s.Fees.Add(o.Fees),
		Taxes:           s.Taxes.Add(o.Taxes),
		WithholdingTax:  s.WithholdingTax.Add(o.WithholdingTax),
		UpfrontPayments: s.UpfrontPayments.Add(o.UpfrontPayments),
		NetAmount:       s.NetAmount.Add(o.NetAmount),
	}
}

// AddOrder folds a single costed order into s.
func (s PeriodSummary) AddOrder(o CostedOrder) PeriodSummary {
	s.TotalOrders++
	switch o.Outcome {
	case OutcomeDelivered:
		s.DeliveredOrders++
	case OutcomeReturned:
		s.ReturnedOrders++
	case OutcomeInTransit:
		s.InTransitOrders++
	case OutcomeCancelled:
		s.CancelledOrders++
	}
	s.GrossAmount = s.GrossAmount.Add(o.GrossAmount)
	s.Fees = s.Fees.Add(o.Fee)
	s.Taxes = s.Taxes.Add(o.Tax)
	s.WithholdingTax = s.WithholdingTax.Add(o.WithholdingTax)
	s.UpfrontPayments = s.UpfrontPayments.Add(o.UpfrontPayment)
	s.NetAmount = s.NetAmount.Add(o.NetAmount)
	return s
}

// Equal compares two summaries field by field. Decimal fields are compared by
// value, so 1.50 equals 1.5.
func (s PeriodSummary) Equal(o PeriodSummary) bool {
	return s.PeriodKey == o.PeriodKey &&
		s.TotalOrders == o.TotalOrders &&
		s.DeliveredOrders == o.DeliveredOrders &&
		s.ReturnedOrders == o.ReturnedOrders &&
		s.InTransitOrders == o.InTransitOrders &&
		s.CancelledOrders == o.CancelledOrders &&
		s.GrossAmount.Equal(o.GrossAmount) &&
		s.Fees.Equal(o.Fees) &&
		s.Taxes.Equal(o.Taxes) &&
		s.WithholdingTax.Equal(o.WithholdingTax) &&
		s.UpfrontPayments.Equal(o.UpfrontPayments) &&
		s.NetAmount.Equal(o.NetAmount)
}

// Growth compares a metric over two adjacent windows.
// Percentage is 0 when Previous is 0.
type Growth struct {
	Current    decimal.Decimal `json:"current"`
	Previous   decimal.Decimal `json:"previous"`
	Percentage float64         `json:"percentage"`
}

// Breakdown is one row of a city or weekday distribution.
type Breakdown struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Orders    int             `json:"orders"`
	Delivered int             `json:"delivered"`
	Returned  int             `json:"returned"`
	NetAmount decimal.Decimal `json:"netAmount"`
	Share     float64         `json:"share"` // percent of the filtered total, 1 dp
}
