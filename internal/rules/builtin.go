package rules

import "github.com/opensource-finance/settle/internal/domain"

// BuiltinRules returns the rules seeded for a tenant with no stored rules.
// They are ordinary AlertRules and can be replaced through the rules API.
func BuiltinRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:          "builtin-cancellation-rate",
			Name:        "Cancellation rate",
			Description: "Share of a courier's orders cancelled before dispatch",
			Version:     "1.0.0",
			Expression:  "total >= 5 ? double(cancelled) / double(total) * 100.0 : 0.0",
			Group:       domain.GroupCourier,
			Bands: []domain.RuleBand{
				{UpperLimit: floatPtr(10), Reason: "normal cancellation rate"},
				{LowerLimit: floatPtr(10), UpperLimit: floatPtr(25), Severity: domain.SeverityWarning, Reason: "elevated cancellation rate"},
				{LowerLimit: floatPtr(25), Severity: domain.SeverityCritical, Reason: "high cancellation rate"},
			},
			Enabled: true,
		},
		{
			ID:          "builtin-unrecognised-status",
			Name:        "Unrecognised statuses",
			Description: "Orders whose status could not be classified and carry no tracking id",
			Version:     "1.0.0",
			Expression:  "unknown > 0",
			Group:       domain.GroupCourier,
			Bands: []domain.RuleBand{
				{UpperLimit: floatPtr(1), Reason: "all statuses recognised"},
				{LowerLimit: floatPtr(1), Severity: domain.SeverityInfo, Reason: "unrecognised order statuses"},
			},
			Enabled: true,
		},
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
