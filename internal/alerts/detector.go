// Package alerts flags couriers, cities and orders that behave abnormally.
//
// Detection is a pure function of the orders, the thresholds and the
// reference time. Alerts carry no identity or lifecycle; two runs over the
// same input produce the same slice in the same order.
package alerts

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

// Detector runs the built-in anomaly checks.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns every stuck-in-transit, return-spike and performance-drop
// alert for the orders, sorted by type, severity and subject.
func (d *Detector) Detect(orders []domain.NormalizedOrder, th domain.Thresholds, now time.Time) []domain.Alert {
	th = th.WithDefaults()

	out := make([]domain.Alert, 0)
	out = append(out, d.StuckInTransit(orders, th, now)...)
	out = append(out, d.ReturnSpikes(orders, th)...)
	out = append(out, d.PerformanceDrops(orders, th)...)
	Sort(out)
	return out
}

// StuckInTransit raises one alert per courier holding in-transit orders older
// than TransitDays whole days.
func (d *Detector) StuckInTransit(orders []domain.NormalizedOrder, th domain.Thresholds, now time.Time) []domain.Alert {
	th = th.WithDefaults()
	byCourier := make(map[string][]domain.StuckOrder)

	for _, o := range orders {
		if o.Outcome != domain.OutcomeInTransit {
			continue
		}
		days := DaysBetween(o.OrderDate, now)
		if days <= th.TransitDays {
			continue
		}
		sev := domain.SeverityWarning
		if days >= 2*th.TransitDays {
			sev = domain.SeverityCritical
		}
		byCourier[o.Courier] = append(byCourier[o.Courier], domain.StuckOrder{
			TrackingID:    o.TrackingID,
			Source:        o.Source,
			City:          o.City,
			OrderDate:     o.OrderDate,
			DaysInTransit: days,
			Severity:      sev,
		})
	}

	out := make([]domain.Alert, 0, len(byCourier))
	for courier, stuck := range byCourier {
		sort.SliceStable(stuck, func(i, j int) bool {
			if stuck[i].DaysInTransit != stuck[j].DaysInTransit {
				return stuck[i].DaysInTransit > stuck[j].DaysInTransit
			}
			return stuck[i].TrackingID < stuck[j].TrackingID
		})
		// Sorted by age, so the first order carries the worst severity.
		worst := stuck[0].Severity
		shown := stuck
		if len(shown) > th.DisplayLimit {
			shown = shown[:th.DisplayLimit]
		}
		out = append(out, domain.Alert{
			Type:       domain.AlertStuckInTransit,
			Severity:   worst,
			SubjectKey: courier,
			Details: domain.AlertDetails{
				Orders:     append([]domain.StuckOrder(nil), shown...),
				TotalCount: len(stuck),
				Threshold:  float64(th.TransitDays),
			},
		})
	}
	Sort(out)
	return out
}

// ReturnSpikes raises one alert per city whose return rate is above
// ReturnRatePercent. Cities with fewer than MinCitySample orders are ignored.
func (d *Detector) ReturnSpikes(orders []domain.NormalizedOrder, th domain.Thresholds) []domain.Alert {
	th = th.WithDefaults()
	cities := make(map[string]*counts)
	couriers := make(map[string]map[string]*counts)

	for _, o := range orders {
		city := cityOf(o)
		c, ok := cities[city]
		if !ok {
			c = &counts{}
			cities[city] = c
			couriers[city] = make(map[string]*counts)
		}
		c.add(o.Outcome)
		cc, ok := couriers[city][o.Courier]
		if !ok {
			cc = &counts{}
			couriers[city][o.Courier] = cc
		}
		cc.add(o.Outcome)
	}

	out := make([]domain.Alert, 0)
	for city, c := range cities {
		if c.total < th.MinCitySample {
			continue
		}
		if cmpRate(c.returned, c.total, th.ReturnRatePercent, 1) <= 0 {
			continue
		}
		rate := percent(c.returned, c.total)
		sev := domain.SeverityWarning
		if cmpRate(c.returned, c.total, th.ReturnRatePercent, 1.5) > 0 {
			sev = domain.SeverityCritical
		}

		split := make([]domain.GroupRate, 0, len(couriers[city]))
		for courier, cc := range couriers[city] {
			split = append(split, domain.GroupRate{
				Key:   courier,
				Total: cc.total,
				Count: cc.returned,
				Rate:  round1(percent(cc.returned, cc.total)),
			})
		}
		sortRates(split, true)

		out = append(out, domain.Alert{
			Type:       domain.AlertReturnSpike,
			Severity:   sev,
			SubjectKey: city,
			Details: domain.AlertDetails{
				Total:     c.total,
				Delivered: c.delivered,
				Returned:  c.returned,
				InTransit: c.inTransit,
				Cancelled: c.cancelled,
				Rate:      round1(rate),
				Threshold: th.ReturnRatePercent,
				Couriers:  split,
			},
		})
	}
	Sort(out)
	return out
}

// PerformanceDrops raises one alert per courier whose delivery rate is below
// PerformanceRatePercent. Unknown outcomes are left out of the denominator.
func (d *Detector) PerformanceDrops(orders []domain.NormalizedOrder, th domain.Thresholds) []domain.Alert {
	th = th.WithDefaults()
	couriers := make(map[string]*counts)
	cities := make(map[string]map[string]*counts)

	for _, o := range orders {
		c, ok := couriers[o.Courier]
		if !ok {
			c = &counts{}
			couriers[o.Courier] = c
			cities[o.Courier] = make(map[string]*counts)
		}
		c.add(o.Outcome)
		city := cityOf(o)
		cc, ok := cities[o.Courier][city]
		if !ok {
			cc = &counts{}
			cities[o.Courier][city] = cc
		}
		cc.add(o.Outcome)
	}

	out := make([]domain.Alert, 0)
	for courier, c := range couriers {
		denom := c.attempted()
		if denom == 0 {
			continue
		}
		if cmpRate(c.delivered, denom, th.PerformanceRatePercent, 1) >= 0 {
			continue
		}
		rate := percent(c.delivered, denom)
		sev := domain.SeverityWarning
		if cmpRate(c.delivered, denom, th.PerformanceRatePercent, 0.5) < 0 {
			sev = domain.SeverityCritical
		}

		problems := make([]domain.GroupRate, 0)
		for city, cc := range cities[courier] {
			n := cc.attempted()
			if n == 0 {
				continue
			}
			if cmpRate(cc.delivered, n, th.ProblemCityFloorPercent, 1) >= 0 {
				continue
			}
			cityRate := percent(cc.delivered, n)
			problems = append(problems, domain.GroupRate{
				Key:   city,
				Total: n,
				Count: cc.delivered,
				Rate:  round1(cityRate),
			})
		}
		sortRates(problems, false)

		out = append(out, domain.Alert{
			Type:       domain.AlertPerformanceDrop,
			Severity:   sev,
			SubjectKey: courier,
			Details: domain.AlertDetails{
				Total:         denom,
				Delivered:     c.delivered,
				Returned:      c.returned,
				InTransit:     c.inTransit,
				Cancelled:     c.cancelled,
				Rate:          round1(rate),
				Threshold:     th.PerformanceRatePercent,
				ProblemCities: problems,
			},
		})
	}
	Sort(out)
	return out
}

// DaysBetween returns the whole days elapsed from start to now, never
// negative.
func DaysBetween(start, now time.Time) int {
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start).Hours() / 24)
}

type counts struct {
	total, delivered, returned, inTransit, cancelled, unknown int
}

func (c *counts) add(o domain.Outcome) {
	c.total++
	switch o {
	case domain.OutcomeDelivered:
		c.delivered++
	case domain.OutcomeReturned:
		c.returned++
	case domain.OutcomeInTransit:
		c.inTransit++
	case domain.OutcomeCancelled:
		c.cancelled++
	default:
		c.unknown++
	}
}

func (c *counts) attempted() int {
	return c.delivered + c.returned + c.inTransit + c.cancelled
}

func cityOf(o domain.NormalizedOrder) string {
	if o.City == "" {
		return domain.UnknownCity
	}
	return o.City
}

// cmpRate compares n/total*100 with factor*pct exactly, by cross
// multiplication: n*100 against factor*pct*total. total must be positive.
func cmpRate(n, total int, pct, factor float64) int {
	lhs := decimal.NewFromInt(int64(n)).Mul(decimal.NewFromInt(100))
	rhs := decimal.NewFromFloat(pct).Mul(decimal.NewFromFloat(factor)).Mul(decimal.NewFromInt(int64(total)))
	return lhs.Cmp(rhs)
}

// percent is for display only; threshold checks use cmpRate.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// sortRates orders rows by rate (descending when desc), then key.
func sortRates(rows []domain.GroupRate, desc bool) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Rate != rows[j].Rate {
			if desc {
				return rows[i].Rate > rows[j].Rate
			}
			return rows[i].Rate < rows[j].Rate
		}
		return rows[i].Key < rows[j].Key
	})
}
