// Package aggregate folds costed orders into day and month summaries and
// derives the growth and distribution views shown next to the balances.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

// KeyFor returns the period key an order falls into.
func KeyFor(o domain.CostedOrder, g domain.Granularity) string {
	if g == domain.GranularityMonth {
		return o.OrderDate.Format(domain.MonthKeyLayout)
	}
	return o.OrderDate.Format(domain.DayKeyLayout)
}

// Empty returns a zero-valued summary for key.
func Empty(key string) domain.PeriodSummary {
	return domain.PeriodSummary{
		PeriodKey:       key,
		GrossAmount:     decimal.Zero,
		Fees:            decimal.Zero,
		Taxes:           decimal.Zero,
		WithholdingTax:  decimal.Zero,
		UpfrontPayments: decimal.Zero,
		NetAmount:       decimal.Zero,
	}
}

// Aggregate folds orders into one summary per period, sorted by key.
func Aggregate(orders []domain.CostedOrder, g domain.Granularity) []domain.PeriodSummary {
	buckets := make(map[string]domain.PeriodSummary)
	for _, o := range orders {
		key := KeyFor(o, g)
		s, ok := buckets[key]
		if !ok {
			s = Empty(key)
		}
		buckets[key] = s.AddOrder(o)
	}
	return sorted(buckets)
}

// RollUp folds day summaries into month summaries. For any order set,
// RollUp(Aggregate(orders, day)) equals Aggregate(orders, month).
func RollUp(daily []domain.PeriodSummary) []domain.PeriodSummary {
	buckets := make(map[string]domain.PeriodSummary)
	for _, d := range daily {
		key := d.PeriodKey
		if len(key) >= len(domain.MonthKeyLayout) {
			key = key[:len(domain.MonthKeyLayout)]
		}
		s, ok := buckets[key]
		if !ok {
			s = Empty(key)
		}
		buckets[key] = s.Add(d)
	}
	return sorted(buckets)
}

// Totals sums every summary. The result has an empty key.
func Totals(summaries []domain.PeriodSummary) domain.PeriodSummary {
	total := Empty("")
	for _, s := range summaries {
		total = total.Add(s)
	}
	return total
}

// Partition splits orders by source, preserving input order within each.
func Partition(orders []domain.CostedOrder) map[domain.Source][]domain.CostedOrder {
	out := make(map[domain.Source][]domain.CostedOrder)
	for _, o := range orders {
		out[o.Source] = append(out[o.Source], o)
	}
	return out
}

func sorted(buckets map[string]domain.PeriodSummary) []domain.PeriodSummary {
	out := make([]domain.PeriodSummary, 0, len(buckets))
	for _, s := range buckets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodKey < out[j].PeriodKey })
	return out
}
