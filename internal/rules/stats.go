package rules

import (
	"sort"

	"github.com/opensource-finance/settle/internal/domain"
)

// Stats builds one row per courier and one per city. Rates are percentages;
// the delivery rate leaves unknown outcomes out of the denominator.
func Stats(orders []domain.CostedOrder) []domain.GroupStats {
	rows := make(map[[2]string]*domain.GroupStats)
	get := func(group, key string) *domain.GroupStats {
		k := [2]string{group, key}
		row, ok := rows[k]
		if !ok {
			row = &domain.GroupStats{Group: group, Key: key}
			rows[k] = row
		}
		return row
	}

	for _, o := range orders {
		city := o.City
		if city == "" {
			city = domain.UnknownCity
		}
		gross, _ := o.GrossAmount.Float64()
		net, _ := o.NetAmount.Float64()
		for _, row := range []*domain.GroupStats{get(domain.GroupCourier, o.Courier), get(domain.GroupCity, city)} {
			row.Total++
			switch o.Outcome {
			case domain.OutcomeDelivered:
				row.Delivered++
			case domain.OutcomeReturned:
				row.Returned++
			case domain.OutcomeInTransit:
				row.InTransit++
			case domain.OutcomeCancelled:
				row.Cancelled++
			default:
				row.Unknown++
			}
			row.GrossAmount += gross
			row.NetAmount += net
		}
	}

	out := make([]domain.GroupStats, 0, len(rows))
	for _, row := range rows {
		if row.Total > 0 {
			row.ReturnRate = float64(row.Returned) / float64(row.Total) * 100
		}
		if attempted := row.Total - row.Unknown; attempted > 0 {
			row.DeliveryRate = float64(row.Delivered) / float64(attempted) * 100
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Key < out[j].Key
	})
	return out
}
