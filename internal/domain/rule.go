package domain

// AlertRule is an operator-defined CEL rule evaluated over per-courier and
// per-city statistics.
type AlertRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Group restricts the rule to "courier" or "city" rows. Empty means both.
	Group string `json:"group,omitempty"`

	// Bands map the expression result to a severity
	Bands []RuleBand `json:"bands"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleBand maps a score range to a severity.
// An empty Severity means "no alert" for that range.
type RuleBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
	Reason     string   `json:"reason"`
}

// Rule groups.
const (
	GroupCourier = "courier"
	GroupCity    = "city"
)

// GroupStats is the activation row a custom rule sees.
type GroupStats struct {
	Group        string
	Key          string
	Total        int
	Delivered    int
	Returned     int
	InTransit    int
	Cancelled    int
	Unknown      int
	ReturnRate   float64 // percent
	DeliveryRate float64 // percent
	GrossAmount  float64
	NetAmount    float64
}
