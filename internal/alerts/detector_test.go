package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/settle/internal/domain"
)

var now = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

func ord(id, courier, city string, outcome domain.Outcome, daysAgo int) domain.NormalizedOrder {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
	return domain.NormalizedOrder{
		TrackingID: id,
		Source:     domain.SourceCityLink,
		Courier:    courier,
		City:       city,
		OrderDate:  day,
		Outcome:    outcome,
	}
}

func TestStuckInTransit(t *testing.T) {
	d := NewDetector()
	th := domain.Thresholds{TransitDays: 5}

	t.Run("SeverityByAge", func(t *testing.T) {
		orders := []domain.NormalizedOrder{
			ord("A", "citylink", "Lahore", domain.OutcomeInTransit, 12),
			ord("B", "rapidpost", "Lahore", domain.OutcomeInTransit, 7),
			ord("C", "rapidpost", "Lahore", domain.OutcomeInTransit, 5),
			ord("D", "rapidpost", "Lahore", domain.OutcomeDelivered, 30),
		}
		got := d.StuckInTransit(orders, th, now)
		require.Len(t, got, 2)

		assert.Equal(t, "citylink", got[0].SubjectKey)
		assert.Equal(t, domain.SeverityCritical, got[0].Severity)
		assert.Equal(t, 12, got[0].Details.Orders[0].DaysInTransit)

		assert.Equal(t, "rapidpost", got[1].SubjectKey)
		assert.Equal(t, domain.SeverityWarning, got[1].Severity)
		require.Len(t, got[1].Details.Orders, 1)
		assert.Equal(t, "B", got[1].Details.Orders[0].TrackingID)
	})

	t.Run("WorstOrderSetsSeverity", func(t *testing.T) {
		orders := []domain.NormalizedOrder{
			ord("A", "citylink", "Lahore", domain.OutcomeInTransit, 6),
			ord("B", "citylink", "Karachi", domain.OutcomeInTransit, 10),
		}
		got := d.StuckInTransit(orders, th, now)
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityCritical, got[0].Severity)
		assert.Equal(t, "B", got[0].Details.Orders[0].TrackingID)
		assert.Equal(t, domain.SeverityWarning, got[0].Details.Orders[1].Severity)
	})

	t.Run("DisplayLimit", func(t *testing.T) {
		var orders []domain.NormalizedOrder
		for i := 0; i < 15; i++ {
			orders = append(orders, ord(fmt.Sprintf("T%02d", i), "citylink", "Lahore", domain.OutcomeInTransit, 8+i))
		}
		got := d.StuckInTransit(orders, domain.Thresholds{TransitDays: 7, DisplayLimit: 4}, now)
		require.Len(t, got, 1)
		assert.Len(t, got[0].Details.Orders, 4)
		assert.Equal(t, 15, got[0].Details.TotalCount)
		assert.Equal(t, 22, got[0].Details.Orders[0].DaysInTransit)
	})

	t.Run("FutureOrderIgnored", func(t *testing.T) {
		got := d.StuckInTransit([]domain.NormalizedOrder{ord("A", "citylink", "Lahore", domain.OutcomeInTransit, -3)}, th, now)
		assert.Empty(t, got)
	})
}

func TestReturnSpikes(t *testing.T) {
	d := NewDetector()

	scenario := func() []domain.NormalizedOrder {
		var orders []domain.NormalizedOrder
		for i := 0; i < 7; i++ {
			orders = append(orders, ord(fmt.Sprintf("D%d", i), "citylink", "Lahore", domain.OutcomeDelivered, 3))
		}
		orders = append(orders,
			ord("R1", "citylink", "Lahore", domain.OutcomeReturned, 3),
			ord("R2", "citylink", "Lahore", domain.OutcomeReturned, 3),
			ord("T1", "citylink", "Lahore", domain.OutcomeInTransit, 1),
		)
		return orders
	}

	t.Run("WarningAboveThreshold", func(t *testing.T) {
		got := d.ReturnSpikes(scenario(), domain.Thresholds{ReturnRatePercent: 15})
		require.Len(t, got, 1)
		a := got[0]
		assert.Equal(t, domain.AlertReturnSpike, a.Type)
		assert.Equal(t, domain.SeverityWarning, a.Severity)
		assert.Equal(t, "Lahore", a.SubjectKey)
		assert.Equal(t, 20.0, a.Details.Rate)
		assert.Equal(t, 10, a.Details.Total)
		assert.Equal(t, 2, a.Details.Returned)
		require.Len(t, a.Details.Couriers, 1)
		assert.Equal(t, "citylink", a.Details.Couriers[0].Key)
	})

	t.Run("CriticalAboveOneAndAHalf", func(t *testing.T) {
		got := d.ReturnSpikes(scenario(), domain.Thresholds{ReturnRatePercent: 10})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityCritical, got[0].Severity)
	})

	t.Run("AtThresholdIsQuiet", func(t *testing.T) {
		assert.Empty(t, d.ReturnSpikes(scenario(), domain.Thresholds{ReturnRatePercent: 20}))

		// 7/50 is 14% exactly, which float division overshoots.
		var orders []domain.NormalizedOrder
		for i := 0; i < 50; i++ {
			outcome := domain.OutcomeDelivered
			if i < 7 {
				outcome = domain.OutcomeReturned
			}
			orders = append(orders, ord(fmt.Sprintf("L%d", i), "citylink", "Lahore", outcome, 1))
		}
		assert.Empty(t, d.ReturnSpikes(orders, domain.Thresholds{ReturnRatePercent: 14}))
		assert.Len(t, d.ReturnSpikes(orders, domain.Thresholds{ReturnRatePercent: 13.9}), 1)
	})

	t.Run("CriticalCutoffIsExact", func(t *testing.T) {
		// 21/100 against 14 * 1.5 = 21 stays a warning.
		var orders []domain.NormalizedOrder
		for i := 0; i < 100; i++ {
			outcome := domain.OutcomeDelivered
			if i < 21 {
				outcome = domain.OutcomeReturned
			}
			orders = append(orders, ord(fmt.Sprintf("K%d", i), "citylink", "Karachi", outcome, 1))
		}
		got := d.ReturnSpikes(orders, domain.Thresholds{ReturnRatePercent: 14})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityWarning, got[0].Severity)
	})

	t.Run("SmallSampleIgnored", func(t *testing.T) {
		orders := []domain.NormalizedOrder{
			ord("R1", "citylink", "Quetta", domain.OutcomeReturned, 1),
			ord("R2", "citylink", "Quetta", domain.OutcomeReturned, 1),
			ord("D1", "citylink", "Quetta", domain.OutcomeDelivered, 1),
		}
		assert.Empty(t, d.ReturnSpikes(orders, domain.Thresholds{}))
	})

	t.Run("CourierSplit", func(t *testing.T) {
		orders := []domain.NormalizedOrder{
			ord("1", "citylink", "Multan", domain.OutcomeReturned, 1),
			ord("2", "citylink", "Multan", domain.OutcomeReturned, 1),
			ord("3", "citylink", "Multan", domain.OutcomeDelivered, 1),
			ord("4", "rapidpost", "Multan", domain.OutcomeDelivered, 1),
			ord("5", "rapidpost", "Multan", domain.OutcomeDelivered, 1),
			ord("6", "rapidpost", "Multan", domain.OutcomeReturned, 1),
		}
		got := d.ReturnSpikes(orders, domain.Thresholds{})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityCritical, got[0].Severity)
		split := got[0].Details.Couriers
		require.Len(t, split, 2)
		assert.Equal(t, "citylink", split[0].Key)
		assert.Equal(t, 66.7, split[0].Rate)
		assert.Equal(t, 33.3, split[1].Rate)
	})
}

func TestPerformanceDrops(t *testing.T) {
	d := NewDetector()

	orders := []domain.NormalizedOrder{
		ord("1", "rapidpost", "Lahore", domain.OutcomeDelivered, 2),
		ord("2", "rapidpost", "Lahore", domain.OutcomeDelivered, 2),
		ord("3", "rapidpost", "Lahore", domain.OutcomeDelivered, 2),
		ord("4", "rapidpost", "Karachi", domain.OutcomeReturned, 2),
		ord("5", "rapidpost", "Karachi", domain.OutcomeCancelled, 2),
		ord("6", "rapidpost", "Karachi", domain.OutcomeDelivered, 2),
		ord("7", "rapidpost", "Karachi", domain.OutcomeUnknown, 2),
		ord("8", "citylink", "Lahore", domain.OutcomeDelivered, 2),
	}

	t.Run("WarningWithProblemCities", func(t *testing.T) {
		got := d.PerformanceDrops(orders, domain.Thresholds{})
		require.Len(t, got, 1)
		a := got[0]
		assert.Equal(t, "rapidpost", a.SubjectKey)
		assert.Equal(t, domain.SeverityWarning, a.Severity)
		assert.Equal(t, 66.7, a.Details.Rate)
		assert.Equal(t, 6, a.Details.Total)
		require.Len(t, a.Details.ProblemCities, 1)
		assert.Equal(t, "Karachi", a.Details.ProblemCities[0].Key)
		assert.Equal(t, 33.3, a.Details.ProblemCities[0].Rate)
	})

	t.Run("CriticalBelowHalf", func(t *testing.T) {
		bad := []domain.NormalizedOrder{
			ord("1", "citylink", "Lahore", domain.OutcomeDelivered, 2),
			ord("2", "citylink", "Lahore", domain.OutcomeReturned, 2),
			ord("3", "citylink", "Lahore", domain.OutcomeReturned, 2),
			ord("4", "citylink", "Lahore", domain.OutcomeInTransit, 2),
		}
		got := d.PerformanceDrops(bad, domain.Thresholds{})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityCritical, got[0].Severity)
	})

	t.Run("AtThresholdIsQuiet", func(t *testing.T) {
		// 29/100 is 29% exactly, which float division undershoots.
		var exact []domain.NormalizedOrder
		for i := 0; i < 100; i++ {
			outcome := domain.OutcomeReturned
			if i < 29 {
				outcome = domain.OutcomeDelivered
			}
			exact = append(exact, ord(fmt.Sprintf("P%d", i), "citylink", "Lahore", outcome, 2))
		}
		assert.Empty(t, d.PerformanceDrops(exact, domain.Thresholds{PerformanceRatePercent: 29}))

		got := d.PerformanceDrops(exact, domain.Thresholds{PerformanceRatePercent: 58})
		require.Len(t, got, 1)
		assert.Equal(t, domain.SeverityWarning, got[0].Severity, "29 is exactly half of 58")
	})

	t.Run("OnlyUnknownIsQuiet", func(t *testing.T) {
		assert.Empty(t, d.PerformanceDrops([]domain.NormalizedOrder{ord("1", "citylink", "Lahore", domain.OutcomeUnknown, 1)}, domain.Thresholds{}))
	})
}

func TestDetect(t *testing.T) {
	d := NewDetector()

	t.Run("Empty", func(t *testing.T) {
		got := d.Detect(nil, domain.Thresholds{}, now)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("OrderedByTypeSeveritySubject", func(t *testing.T) {
		var orders []domain.NormalizedOrder
		for i := 0; i < 5; i++ {
			orders = append(orders, ord(fmt.Sprintf("K%d", i), "citylink", "Karachi", domain.OutcomeReturned, 1))
			orders = append(orders, ord(fmt.Sprintf("L%d", i), "rapidpost", "Lahore", domain.OutcomeInTransit, 9))
		}
		orders = append(orders, ord("X", "citylink", "Lahore", domain.OutcomeInTransit, 30))

		got := d.Detect(orders, domain.Thresholds{}, now)
		var kinds []string
		for _, a := range got {
			kinds = append(kinds, fmt.Sprintf("%s/%s/%s", a.Type, a.Severity, a.SubjectKey))
		}
		assert.Equal(t, []string{
			"stuck_in_transit/critical/citylink",
			"stuck_in_transit/warning/rapidpost",
			"return_spike/critical/Karachi",
			"performance_drop/critical/citylink",
			"performance_drop/critical/rapidpost",
		}, kinds)
	})

	t.Run("Idempotent", func(t *testing.T) {
		orders := []domain.NormalizedOrder{
			ord("1", "citylink", "Lahore", domain.OutcomeInTransit, 20),
			ord("2", "rapidpost", "Lahore", domain.OutcomeReturned, 2),
		}
		assert.Equal(t, d.Detect(orders, domain.Thresholds{}, now), d.Detect(orders, domain.Thresholds{}, now))
	})
}
