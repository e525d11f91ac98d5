package intake

import (
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/settle/internal/domain"
)

type storefrontFile struct {
	Orders []storefrontOrder `json:"orders"`
}

type storefrontOrder struct {
	ID             string           `json:"id"`
	TrackingNumber string           `json:"tracking_number"`
	Status         string           `json:"status"`
	Carrier        string           `json:"carrier"`
	ShippingCity   string           `json:"shipping_city"`
	CreatedAt      string           `json:"created_at"`
	ProcessedAt    string           `json:"processed_at"`
	TotalPrice     domain.RawAmount `json:"total_price"`
	AmountPaid     domain.RawAmount `json:"amount_paid"`
}

// ParseStorefrontJSON parses the storefront order export. The carrier, when
// present, becomes the courier so storefront orders group with the courier
// that actually carried them.
func ParseStorefrontJSON(data []byte) ([]domain.OrderRecord, error) {
	var file storefrontFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("storefront: unmarshal: %w", err)
	}

	records := make([]domain.OrderRecord, 0, len(file.Orders))
	for _, o := range file.Orders {
		tracking := o.TrackingNumber
		if tracking == "" {
			tracking = o.ID
		}
		records = append(records, domain.OrderRecord{
			Source:          domain.SourceStorefront,
			TrackingID:      tracking,
			Status:          o.Status,
			Courier:         o.Carrier,
			City:            o.ShippingCity,
			OrderDate:       o.CreatedAt,
			TransactionDate: o.ProcessedAt,
			Amount:          o.TotalPrice,
			UpfrontPayment:  o.AmountPaid,
		})
	}
	return records, nil
}
