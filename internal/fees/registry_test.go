package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/settle/internal/domain"
)

func order(src domain.Source, outcome domain.Outcome, gross string) domain.NormalizedOrder {
	return domain.NormalizedOrder{
		TrackingID:  "T-1",
		Source:      src,
		Outcome:     outcome,
		GrossAmount: decimal.RequireFromString(gross),
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCostDelivered(t *testing.T) {
	r := Default()

	t.Run("RapidPost", func(t *testing.T) {
		c := r.Cost(order(domain.SourceRapidPost, domain.OutcomeDelivered, "1000"))
		assertDecimal(t, "40", c.Fee)
		assertDecimal(t, "10", c.Tax)
		assertDecimal(t, "20", c.WithholdingTax)
		assertDecimal(t, "930", c.NetAmount)
	})

	t.Run("CityLink", func(t *testing.T) {
		c := r.Cost(order(domain.SourceCityLink, domain.OutcomeDelivered, "1000"))
		assertDecimal(t, "100", c.Fee)
		assertDecimal(t, "50", c.Tax)
		assertDecimal(t, "0", c.WithholdingTax)
		assertDecimal(t, "850", c.NetAmount)
	})

	t.Run("Storefront", func(t *testing.T) {
		c := r.Cost(order(domain.SourceStorefront, domain.OutcomeDelivered, "2000"))
		assertDecimal(t, "250", c.Fee)
		assertDecimal(t, "1750", c.NetAmount)
	})

	t.Run("RoundsEachComponent", func(t *testing.T) {
		c := r.Cost(order(domain.SourceRapidPost, domain.OutcomeDelivered, "333.33"))
		assertDecimal(t, "13.33", c.Fee)
		assertDecimal(t, "3.33", c.Tax)
		assertDecimal(t, "6.67", c.WithholdingTax)
		assert.True(t, c.NetAmount.Add(c.Fee).Add(c.Tax).Add(c.WithholdingTax).Equal(c.GrossAmount))
	})

	t.Run("ZeroGrossHasNoFees", func(t *testing.T) {
		c := r.Cost(order(domain.SourceStorefront, domain.OutcomeDelivered, "0"))
		assert.True(t, c.Fee.IsZero())
		assert.True(t, c.NetAmount.IsZero())
	})

	t.Run("NegativeGrossPassesThrough", func(t *testing.T) {
		c := r.Cost(order(domain.SourceCityLink, domain.OutcomeDelivered, "-50"))
		assert.True(t, c.Fee.IsZero())
		assertDecimal(t, "-50", c.NetAmount)
	})

	t.Run("UpfrontCarriedOnDelivered", func(t *testing.T) {
		o := order(domain.SourceRapidPost, domain.OutcomeDelivered, "1000")
		o.DeclaredUpfront = decimal.NewFromInt(300)
		c := r.Cost(o)
		assertDecimal(t, "300", c.UpfrontPayment)
		assertDecimal(t, "930", c.NetAmount)
	})
}

func TestCostReturned(t *testing.T) {
	r := Default()

	t.Run("RateBased", func(t *testing.T) {
		c := r.Cost(order(domain.SourceRapidPost, domain.OutcomeReturned, "1500"))
		assertDecimal(t, "60", c.Fee)
		assertDecimal(t, "-60", c.NetAmount)
	})

	t.Run("Flat", func(t *testing.T) {
		c := r.Cost(order(domain.SourceCityLink, domain.OutcomeReturned, "1500"))
		assertDecimal(t, "150", c.Fee)
		assertDecimal(t, "-150", c.NetAmount)
		assert.True(t, c.Tax.IsZero())
	})

	t.Run("VendorReversalIgnoredByDefault", func(t *testing.T) {
		o := order(domain.SourceCityLink, domain.OutcomeReturned, "1500")
		o.ReversalFee = decimal.NewFromInt(80)
		o.HasReversal = true
		c := r.Cost(o)
		assertDecimal(t, "150", c.Fee)
	})

	t.Run("VendorReversalWhenEnabled", func(t *testing.T) {
		s := r.Schedule(domain.SourceCityLink)
		s.UseVendorReversal = true
		o := order(domain.SourceCityLink, domain.OutcomeReturned, "1500")
		o.ReversalFee = decimal.NewFromInt(80)
		o.ReversalTax = decimal.RequireFromString("12.5")
		o.HasReversal = true

		c := r.With(s).Cost(o)
		assertDecimal(t, "92.5", c.Fee)
		assertDecimal(t, "-92.5", c.NetAmount)
	})
}

func TestCostUnresolvedIsZero(t *testing.T) {
	r := Default()
	for _, outcome := range []domain.Outcome{domain.OutcomeInTransit, domain.OutcomeCancelled, domain.OutcomeUnknown} {
		t.Run(string(outcome), func(t *testing.T) {
			o := order(domain.SourceRapidPost, outcome, "1000")
			o.DeclaredUpfront = decimal.NewFromInt(100)
			c := r.Cost(o)
			assert.True(t, c.NetAmount.IsZero())
			assert.True(t, c.Fee.IsZero())
			assert.True(t, c.UpfrontPayment.IsZero())
			assertDecimal(t, "1000", c.GrossAmount)
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Run("UnknownSourceIsFeeFree", func(t *testing.T) {
		c := Default().Cost(order(domain.Source("parcelx"), domain.OutcomeDelivered, "1000"))
		assert.True(t, c.Fee.IsZero())
		assertDecimal(t, "1000", c.NetAmount)
	})

	t.Run("WithDoesNotMutate", func(t *testing.T) {
		base := Default()
		added := base.With(domain.FeeSchedule{Source: "parcelx", FeeRate: decimal.NewFromInt(3)})

		require.Len(t, base.Schedules(), 3)
		require.Len(t, added.Schedules(), 4)
		assertDecimal(t, "30", added.Cost(order("parcelx", domain.OutcomeDelivered, "1000")).Fee)
		assert.True(t, base.Cost(order("parcelx", domain.OutcomeDelivered, "1000")).Fee.IsZero())
	})

	t.Run("SchedulesSorted", func(t *testing.T) {
		s := Default().Schedules()
		require.Len(t, s, 3)
		assert.Equal(t, domain.SourceCityLink, s[0].Source)
		assert.Equal(t, domain.SourceRapidPost, s[1].Source)
		assert.Equal(t, domain.SourceStorefront, s[2].Source)
	})
}
