package intake

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/settle/internal/domain"
)

// ParseOrders dispatches to the parser for src.
func ParseOrders(src domain.Source, data []byte) ([]domain.OrderRecord, error) {
	switch src {
	case domain.SourceRapidPost:
		return ParseRapidPostCSV(data)
	case domain.SourceCityLink:
		return ParseCityLinkJSON(data)
	case domain.SourceStorefront:
		return ParseStorefrontJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
	}
}

// ParseReceipts reads a receipt feed in either JSON or CSV.
//
// JSON is a bare array or an object with a "receipts" array, each entry
// carrying reference, amount, status and date. CSV uses the same names as
// headers. The source is stamped onto every receipt.
func ParseReceipts(src domain.Source, data []byte) ([]domain.Receipt, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []domain.Receipt{}, nil
	}

	var receipts []domain.Receipt
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &receipts); err != nil {
			return nil, fmt.Errorf("%s receipts: unmarshal: %w", src, err)
		}
	case '{':
		var wrapped struct {
			Receipts []domain.Receipt `json:"receipts"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("%s receipts: unmarshal: %w", src, err)
		}
		receipts = wrapped.Receipts
	default:
		rows, err := readCSV(trimmed, "amount", "status", "date")
		if err != nil {
			return nil, fmt.Errorf("%s receipts: %w", src, err)
		}
		for _, row := range rows {
			receipts = append(receipts, domain.Receipt{
				Reference: row["reference"],
				Amount:    domain.RawAmount(row["amount"]),
				Status:    row["status"],
				Date:      row["date"],
			})
		}
	}

	for i := range receipts {
		receipts[i].Source = src
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	return receipts, nil
}
