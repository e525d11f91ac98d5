package intake

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/settle/internal/domain"
)

// cityLinkFile is the top-level payload of the CityLink packet API.
type cityLinkFile struct {
	Packets []cityLinkPacket `json:"packets"`
}

type cityLinkPacket struct {
	ConsignmentNo   string           `json:"consignment_no"`
	Status          string           `json:"status"`
	DestinationCity string           `json:"destination_city"`
	BookedOn        string           `json:"booked_on"`
	TransactionDate string           `json:"transaction_date"`
	CODAmount       domain.RawAmount `json:"cod_amount"`
	ReversalCharges domain.RawAmount `json:"reversal_charges"`
	ReversalTax     domain.RawAmount `json:"reversal_tax"`
}

// ParseCityLinkJSON parses the CityLink packet list.
func ParseCityLinkJSON(data []byte) ([]domain.OrderRecord, error) {
	var file cityLinkFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("citylink: unmarshal: %w", err)
	}

	records := make([]domain.OrderRecord, 0, len(file.Packets))
	for _, p := range file.Packets {
		records = append(records, domain.OrderRecord{
			Source:          domain.SourceCityLink,
			TrackingID:      p.ConsignmentNo,
			Status:          p.Status,
			Courier:         string(domain.SourceCityLink),
			City:            p.DestinationCity,
			OrderDate:       p.BookedOn,
			TransactionDate: p.TransactionDate,
			Amount:          p.CODAmount,
			ReversalFee:     p.ReversalCharges,
			ReversalTax:     p.ReversalTax,
		})
	}
	return records, nil
}
