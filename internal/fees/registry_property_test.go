package fees

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/settle/internal/domain"
)

var sourceGen = gen.OneConstOf(domain.SourceRapidPost, domain.SourceCityLink, domain.SourceStorefront)

// cents generates gross amounts with two decimal places.
func cents() gopter.Gen {
	return gen.Int64Range(-100_000, 10_000_000).Map(func(v int64) decimal.Decimal {
		return decimal.New(v, -2)
	})
}

// TestDeliveredConservation verifies Net + Fee + Tax + Withholding == Gross.
func TestDeliveredConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	r := Default()

	properties.Property("delivered orders conserve gross", prop.ForAll(
		func(src domain.Source, gross decimal.Decimal) bool {
			c := r.Cost(domain.NormalizedOrder{Source: src, Outcome: domain.OutcomeDelivered, GrossAmount: gross})
			sum := c.NetAmount.Add(c.Fee).Add(c.Tax).Add(c.WithholdingTax)
			return sum.Equal(gross)
		},
		sourceGen,
		cents(),
	))

	properties.TestingRun(t)
}

// TestUnresolvedZeroFloor verifies unresolved outcomes never carry a net.
func TestUnresolvedZeroFloor(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	r := Default()

	properties.Property("unresolved orders have zero net", prop.ForAll(
		func(src domain.Source, outcome domain.Outcome, gross decimal.Decimal) bool {
			c := r.Cost(domain.NormalizedOrder{Source: src, Outcome: outcome, GrossAmount: gross})
			return c.NetAmount.IsZero() && c.Fee.IsZero() && c.Tax.IsZero() && c.WithholdingTax.IsZero()
		},
		sourceGen,
		gen.OneConstOf(domain.OutcomeInTransit, domain.OutcomeCancelled, domain.OutcomeUnknown),
		cents(),
	))

	properties.Property("returned net is the negated fee", prop.ForAll(
		func(src domain.Source, gross decimal.Decimal) bool {
			c := r.Cost(domain.NormalizedOrder{Source: src, Outcome: domain.OutcomeReturned, GrossAmount: gross})
			return c.NetAmount.Equal(c.Fee.Neg()) && !c.Fee.IsNegative()
		},
		sourceGen,
		cents(),
	))

	properties.TestingRun(t)
}
