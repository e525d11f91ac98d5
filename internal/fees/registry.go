// Package fees holds the per-source settlement terms and applies them to
// normalized orders.
package fees

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DefaultSchedules returns the built-in terms for the known sources.
func DefaultSchedules() []domain.FeeSchedule {
	return []domain.FeeSchedule{
		{
			Source:          domain.SourceRapidPost,
			FeeRate:         decimal.NewFromInt(4),
			TaxRate:         decimal.NewFromInt(1),
			WithholdingRate: decimal.NewFromInt(2),
			ReturnFeeRate:   decimal.NewFromInt(4),
		},
		{
			Source:    domain.SourceCityLink,
			FeeRate:   decimal.NewFromInt(10),
			TaxRate:   decimal.NewFromInt(5),
			ReturnFee: decimal.NewFromInt(150),
		},
		{
			Source:         domain.SourceStorefront,
			FlatFee:        decimal.NewFromInt(200),
			CommissionRate: decimal.RequireFromString("2.5"),
			ReturnFee:      decimal.NewFromInt(250),
		},
	}
}

// Registry maps a source to its fee schedule. A Registry is immutable once
// built; With returns a modified copy.
type Registry struct {
	schedules map[domain.Source]domain.FeeSchedule
}

// New builds a registry from the given schedules. Later rows for the same
// source replace earlier ones.
func New(schedules ...domain.FeeSchedule) *Registry {
	r := &Registry{schedules: make(map[domain.Source]domain.FeeSchedule, len(schedules))}
	for _, s := range schedules {
		r.schedules[s.Source] = s
	}
	return r
}

// Default builds a registry with DefaultSchedules.
func Default() *Registry {
	return New(DefaultSchedules()...)
}

// With returns a copy of the registry with one schedule added or replaced.
func (r *Registry) With(s domain.FeeSchedule) *Registry {
	next := &Registry{schedules: make(map[domain.Source]domain.FeeSchedule, len(r.schedules)+1)}
	for k, v := range r.schedules {
		next.schedules[k] = v
	}
	next.schedules[s.Source] = s
	return next
}

// Schedule returns the terms for a source. Unknown sources get a zero-fee
// schedule.
func (r *Registry) Schedule(src domain.Source) domain.FeeSchedule {
	if s, ok := r.schedules[src]; ok {
		return s
	}
	return domain.FeeSchedule{Source: src}
}

// Schedules lists every configured schedule sorted by source.
func (r *Registry) Schedules() []domain.FeeSchedule {
	out := make([]domain.FeeSchedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Cost applies the source's schedule to one order.
//
// Every fee component is rounded to two places before the net is derived, so
// for delivered orders Net + Fee + Tax + WithholdingTax equals Gross exactly.
// Orders that are not delivered or returned carry no fees and a zero net.
func (r *Registry) Cost(o domain.NormalizedOrder) domain.CostedOrder {
	c := domain.CostedOrder{
		NormalizedOrder: o,
		Fee:             decimal.Zero,
		Tax:             decimal.Zero,
		WithholdingTax:  decimal.Zero,
		UpfrontPayment:  decimal.Zero,
		NetAmount:       decimal.Zero,
	}
	s := r.Schedule(o.Source)

	switch o.Outcome {
	case domain.OutcomeDelivered:
		gross := o.GrossAmount
		c.UpfrontPayment = o.DeclaredUpfront
		if !gross.IsPositive() {
			c.NetAmount = gross
			return c
		}
		c.Fee = percentOf(gross, s.FeeRate).
			Add(percentOf(gross, s.CommissionRate)).
			Add(round(s.FlatFee))
		c.Tax = percentOf(gross, s.TaxRate)
		c.WithholdingTax = percentOf(gross, s.WithholdingRate)
		c.NetAmount = gross.Sub(c.Fee).Sub(c.Tax).Sub(c.WithholdingTax)

	case domain.OutcomeReturned:
		if s.UseVendorReversal && o.HasReversal {
			c.Fee = round(o.ReversalFee.Add(o.ReversalTax))
		} else {
			c.Fee = round(s.ReturnFee)
			if o.GrossAmount.IsPositive() {
				c.Fee = c.Fee.Add(percentOf(o.GrossAmount, s.ReturnFeeRate))
			}
		}
		c.NetAmount = c.Fee.Neg()
	}
	return c
}

// CostAll applies Cost to every order, preserving order.
func (r *Registry) CostAll(orders []domain.NormalizedOrder) []domain.CostedOrder {
	out := make([]domain.CostedOrder, len(orders))
	for i, o := range orders {
		out[i] = r.Cost(o)
	}
	return out
}

func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return round(amount.Mul(rate).Div(hundred))
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}
