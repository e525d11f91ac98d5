package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/fees"
	"github.com/opensource-finance/settle/internal/rules"
)

var now = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func scenarioOrders() []domain.OrderRecord {
	var records []domain.OrderRecord
	add := func(id, status, date string) {
		records = append(records, domain.OrderRecord{
			Source:     domain.SourceCityLink,
			TrackingID: id,
			Status:     status,
			Courier:    "citylink",
			City:       "Lahore",
			OrderDate:  date,
			Amount:     "1000",
		})
	}
	for i := 0; i < 7; i++ {
		add(fmt.Sprintf("CL-D%d", i), "Delivered", "2026-10-05")
	}
	add("CL-R1", "Returned to shipper", "2026-10-06")
	add("CL-R2", "Return in progress", "2026-10-07")
	add("CL-T1", "Out for delivery", "2026-10-18")
	return records
}

func scenarioProcessor() *Processor {
	p := NewProcessor()
	p.Fees = fees.Default().With(domain.FeeSchedule{
		Source:  domain.SourceCityLink,
		FeeRate: decimal.NewFromInt(10),
		TaxRate: decimal.NewFromInt(5),
	})
	p.AcceptedStatuses = map[domain.Source][]string{domain.SourceCityLink: {"Settled"}}
	return p
}

func balanceFor(t *testing.T, run *domain.Run, src domain.Source) domain.Balance {
	t.Helper()
	for _, b := range run.Balances {
		if b.Source == src {
			return b
		}
	}
	t.Fatalf("no balance for %s", src)
	return domain.Balance{}
}

func TestProcessScenario(t *testing.T) {
	p := scenarioProcessor()
	th := domain.Thresholds{ReturnRatePercent: 15}

	run := p.Process(context.Background(), &Input{
		TenantID:   "tenant-001",
		Orders:     scenarioOrders(),
		Thresholds: &th,
		Now:        now,
		Receipts: map[domain.Source][]domain.Receipt{
			domain.SourceCityLink: {{Source: domain.SourceCityLink, Amount: "5950", Status: "Settled", Date: "2026-10-15"}},
		},
	})

	require.NotEmpty(t, run.ID)
	assert.Equal(t, domain.WindowCurrent, run.Window)
	assert.Zero(t, run.Skipped.Count)

	require.Len(t, run.Monthly, 1)
	month := run.Monthly[0]
	assert.Equal(t, "2026-10", month.PeriodKey)
	assert.Equal(t, 10, month.TotalOrders)
	assert.Equal(t, 7, month.DeliveredOrders)
	assert.Equal(t, 2, month.ReturnedOrders)
	assert.Equal(t, 1, month.InTransitOrders)
	assert.True(t, month.NetAmount.Equal(decimal.NewFromInt(5950)), "net %s", month.NetAmount)

	b := balanceFor(t, run, domain.SourceCityLink)
	assert.True(t, b.NetOwed.Equal(decimal.NewFromInt(5950)))
	assert.True(t, b.Received.Equal(decimal.NewFromInt(5950)))
	assert.True(t, b.Outstanding.IsZero())

	require.Len(t, run.Alerts, 1)
	a := run.Alerts[0]
	assert.Equal(t, domain.AlertReturnSpike, a.Type)
	assert.Equal(t, domain.SeverityWarning, a.Severity)
	assert.Equal(t, "Lahore", a.SubjectKey)
	assert.Equal(t, 20.0, a.Details.Rate)

	assert.Len(t, Actionable(run), 1)
	assert.Equal(t, 10, run.Metadata.RecordsIn)
	assert.Equal(t, 1, run.Metadata.ReceiptsIn)
	assert.Equal(t, Version, run.Metadata.EngineVersion)
}

func TestProcessEmpty(t *testing.T) {
	run := NewProcessor().Process(context.Background(), &Input{Now: now})

	assert.Empty(t, run.Daily)
	assert.Empty(t, run.Monthly)
	assert.Zero(t, run.Totals.TotalOrders)
	assert.True(t, run.Totals.NetAmount.IsZero())
	assert.Empty(t, run.Alerts)
	assert.Empty(t, run.Cities)
	assert.Empty(t, run.Weekdays)

	require.Len(t, run.Balances, len(domain.Sources()))
	for _, b := range run.Balances {
		assert.True(t, b.NetOwed.IsZero())
		assert.True(t, b.Received.IsZero())
		assert.True(t, b.Outstanding.IsZero())
	}
	total := TotalBalance(run)
	assert.True(t, total.Outstanding.IsZero())
}

func TestProcessSkippedAndUnknownSource(t *testing.T) {
	records := []domain.OrderRecord{
		{Source: "parcelx", TrackingID: "PX-1", Status: "delivered", OrderDate: "2026-10-02", Amount: "300"},
		{Source: domain.SourceRapidPost, TrackingID: "RP-1", Status: "delivered", Amount: "300"},
		{Source: domain.SourceRapidPost, TrackingID: "RP-2", Status: "delivered", OrderDate: "2026-10-02"},
	}

	run := NewProcessor().Process(context.Background(), &Input{Orders: records, Now: now})

	assert.Equal(t, 2, run.Skipped.Count)
	require.Len(t, run.Balances, 4)
	last := run.Balances[3]
	assert.Equal(t, domain.Source("parcelx"), last.Source)
	assert.True(t, last.NetOwed.Equal(decimal.NewFromInt(300)))
}

func TestProcessWindowPrevious(t *testing.T) {
	records := []domain.OrderRecord{
		{Source: domain.SourceRapidPost, TrackingID: "RP-1", Status: "Delivered", City: "Karachi", OrderDate: "2026-09-10", Amount: "1000"},
		{Source: domain.SourceRapidPost, TrackingID: "RP-2", Status: "Delivered", City: "Lahore", OrderDate: "2026-10-10", Amount: "1000"},
	}

	run := NewProcessor().Process(context.Background(), &Input{
		Orders: records,
		Window: domain.Window{Kind: domain.WindowPrevious},
		Now:    now,
	})

	b := balanceFor(t, run, domain.SourceRapidPost)
	assert.True(t, b.NetOwed.Equal(decimal.NewFromInt(930)))
	require.Len(t, run.Cities, 1)
	assert.Equal(t, "Karachi", run.Cities[0].Key)
	assert.Len(t, run.Monthly, 2)
	assert.Equal(t, 0.0, run.NetGrowth.Percentage)
}

func TestProcessCustomRules(t *testing.T) {
	engine, err := rules.NewEngine(2)
	require.NoError(t, err)
	require.NoError(t, engine.LoadRule(&domain.AlertRule{
		ID:         "any-return",
		Expression: "returned > 0",
		Group:      domain.GroupCourier,
		Enabled:    true,
	}))

	p := scenarioProcessor()
	p.Rules = engine

	run := p.Process(context.Background(), &Input{Orders: scenarioOrders(), Now: now})

	require.Len(t, run.Alerts, 1)
	assert.Equal(t, domain.AlertCustomRule, run.Alerts[0].Type)
	assert.Equal(t, "citylink", run.Alerts[0].SubjectKey)
	assert.Equal(t, 1, run.Metadata.RulesApplied)
	assert.Zero(t, run.Metadata.RuleErrors)
}
