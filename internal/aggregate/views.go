package aggregate

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

// Metric selects what MonthOverMonth compares.
type Metric string

const (
	MetricNet    Metric = "net"
	MetricGross  Metric = "gross"
	MetricOrders Metric = "orders"
)

// Filter returns the orders matching keep.
func Filter(orders []domain.CostedOrder, keep func(domain.CostedOrder) bool) []domain.CostedOrder {
	out := make([]domain.CostedOrder, 0, len(orders))
	for _, o := range orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

// InWindow matches orders whose day falls inside the window.
func InWindow(w domain.Window, now time.Time) func(domain.CostedOrder) bool {
	first, last, bounded := w.Bounds(now)
	return func(o domain.CostedOrder) bool {
		if !bounded {
			return true
		}
		return !o.OrderDate.Before(first) && !o.OrderDate.After(last)
	}
}

// MonthOverMonth compares the metric for the month containing now with the
// month before it.
func MonthOverMonth(orders []domain.CostedOrder, now time.Time, metric Metric) domain.Growth {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	cur := monthStart.Format(domain.MonthKeyLayout)
	prev := monthStart.AddDate(0, -1, 0).Format(domain.MonthKeyLayout)

	g := domain.Growth{Current: decimal.Zero, Previous: decimal.Zero}
	for _, o := range orders {
		var bucket *decimal.Decimal
		switch KeyFor(o, domain.GranularityMonth) {
		case cur:
			bucket = &g.Current
		case prev:
			bucket = &g.Previous
		default:
			continue
		}
		*bucket = bucket.Add(metricValue(o, metric))
	}

	if !g.Previous.IsZero() {
		pct, _ := g.Current.Sub(g.Previous).Div(g.Previous.Abs()).Mul(decimal.NewFromInt(100)).Float64()
		g.Percentage = round1(pct)
	}
	return g
}

func metricValue(o domain.CostedOrder, m Metric) decimal.Decimal {
	switch m {
	case MetricGross:
		return o.GrossAmount
	case MetricOrders:
		return decimal.NewFromInt(1)
	default:
		return o.NetAmount
	}
}

// ByCity distributes orders over cities, largest first.
func ByCity(orders []domain.CostedOrder) []domain.Breakdown {
	rows := make(map[string]*domain.Breakdown)
	for _, o := range orders {
		city := o.City
		if city == "" {
			city = domain.UnknownCity
		}
		row, ok := rows[city]
		if !ok {
			row = &domain.Breakdown{Key: city, Label: city, NetAmount: decimal.Zero}
			rows[city] = row
		}
		tally(row, o)
	}

	out := finish(rows, len(orders))
	sort.Slice(out, func(i, j int) bool {
		if out[i].Orders != out[j].Orders {
			return out[i].Orders > out[j].Orders
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ByWeekday distributes orders over ISO weekdays (1 = Monday, 7 = Sunday).
// Every weekday is present once there is at least one order.
func ByWeekday(orders []domain.CostedOrder) []domain.Breakdown {
	if len(orders) == 0 {
		return []domain.Breakdown{}
	}
	rows := make(map[string]*domain.Breakdown, 7)
	for d := 1; d <= 7; d++ {
		key := strconv.Itoa(d)
		rows[key] = &domain.Breakdown{Key: key, Label: time.Weekday(d % 7).String(), NetAmount: decimal.Zero}
	}
	for _, o := range orders {
		tally(rows[strconv.Itoa(isoWeekday(o.OrderDate))], o)
	}

	out := finish(rows, len(orders))
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

func tally(row *domain.Breakdown, o domain.CostedOrder) {
	row.Orders++
	switch o.Outcome {
	case domain.OutcomeDelivered:
		row.Delivered++
	case domain.OutcomeReturned:
		row.Returned++
	}
	row.NetAmount = row.NetAmount.Add(o.NetAmount)
}

func finish(rows map[string]*domain.Breakdown, total int) []domain.Breakdown {
	out := make([]domain.Breakdown, 0, len(rows))
	for _, row := range rows {
		if total > 0 {
			row.Share = round1(float64(row.Orders) / float64(total) * 100)
		}
		out = append(out, *row)
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
