package alerts

import (
	"sort"

	"github.com/opensource-finance/settle/internal/domain"
)

var typeRank = map[domain.AlertType]int{
	domain.AlertStuckInTransit:  0,
	domain.AlertReturnSpike:     1,
	domain.AlertPerformanceDrop: 2,
	domain.AlertCustomRule:      3,
}

// Sort orders alerts by type, then severity (critical first), then subject.
// Custom rule alerts with the same subject are ordered by rule id.
func Sort(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if ra, rb := rankOf(a.Type), rankOf(b.Type); ra != rb {
			return ra < rb
		}
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.SubjectKey != b.SubjectKey {
			return a.SubjectKey < b.SubjectKey
		}
		return a.Details.RuleID < b.Details.RuleID
	})
}

func rankOf(t domain.AlertType) int {
	if r, ok := typeRank[t]; ok {
		return r
	}
	return len(typeRank)
}
