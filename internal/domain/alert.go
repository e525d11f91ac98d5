package domain

import "time"

// AlertType classifies an anomaly.
type AlertType string

const (
	AlertStuckInTransit  AlertType = "stuck_in_transit"
	AlertReturnSpike     AlertType = "return_spike"
	AlertPerformanceDrop AlertType = "performance_drop"
	AlertCustomRule      AlertType = "custom_rule"
)

// Severity of an alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Rank orders severities from most to least urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	default:
		return 3
	}
}

// Alert is recomputed on every detector run; it has no lifecycle of its own.
type Alert struct {
	Type       AlertType    `json:"type"`
	Severity   Severity     `json:"severity"`
	SubjectKey string       `json:"subjectKey"`
	Details    AlertDetails `json:"details"`
}

// AlertDetails is the diagnostic payload. Only the fields relevant to the
// alert type are populated.
type AlertDetails struct {
	// Stuck in transit: Orders is capped for display, TotalCount is not.
	Orders     []StuckOrder `json:"orders,omitempty"`
	TotalCount int          `json:"totalCount,omitempty"`

	Total     int `json:"total,omitempty"`
	Delivered int `json:"delivered,omitempty"`
	Returned  int `json:"returned,omitempty"`
	InTransit int `json:"inTransit,omitempty"`
	Cancelled int `json:"cancelled,omitempty"`

	// Rate and Threshold are percentages.
	Rate      float64 `json:"rate,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`

	Couriers      []GroupRate `json:"couriers,omitempty"`
	ProblemCities []GroupRate `json:"problemCities,omitempty"`

	RuleID string  `json:"ruleId,omitempty"`
	Score  float64 `json:"score,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// StuckOrder is one in-transit order past the transit threshold.
type StuckOrder struct {
	TrackingID    string    `json:"trackingId"`
	Source        Source    `json:"source"`
	City          string    `json:"city"`
	OrderDate     time.Time `json:"orderDate"`
	DaysInTransit int       `json:"daysInTransit"`
	Severity      Severity  `json:"severity"`
}

// GroupRate is a nested count/rate row used for diagnosis.
type GroupRate struct {
	Key   string  `json:"key"`
	Total int     `json:"total"`
	Count int     `json:"count"`
	Rate  float64 `json:"rate"` // percent, 1 dp
}

// Thresholds drive the alert detector. Zero fields fall back to defaults.
type Thresholds struct {
	TransitDays             int     `json:"transitDays" yaml:"transit_days"`
	ReturnRatePercent       float64 `json:"returnRatePercent" yaml:"return_rate_percent"`
	PerformanceRatePercent  float64 `json:"performanceRatePercent" yaml:"performance_rate_percent"`
	MinCitySample           int     `json:"minCitySample" yaml:"min_city_sample"`
	ProblemCityFloorPercent float64 `json:"problemCityFloorPercent" yaml:"problem_city_floor_percent"`
	DisplayLimit            int     `json:"displayLimit" yaml:"display_limit"`
}

// DefaultThresholds returns the detector defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TransitDays:             7,
		ReturnRatePercent:       20,
		PerformanceRatePercent:  70,
		MinCitySample:           5,
		ProblemCityFloorPercent: 50,
		DisplayLimit:            10,
	}
}

// WithDefaults returns a copy with every unset field filled in.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.TransitDays <= 0 {
		t.TransitDays = d.TransitDays
	}
	if t.ReturnRatePercent <= 0 {
		t.ReturnRatePercent = d.ReturnRatePercent
	}
	if t.PerformanceRatePercent <= 0 {
		t.PerformanceRatePercent = d.PerformanceRatePercent
	}
	if t.MinCitySample <= 0 {
		t.MinCitySample = d.MinCitySample
	}
	if t.ProblemCityFloorPercent <= 0 {
		t.ProblemCityFloorPercent = d.ProblemCityFloorPercent
	}
	if t.DisplayLimit <= 0 {
		t.DisplayLimit = d.DisplayLimit
	}
	return t
}
