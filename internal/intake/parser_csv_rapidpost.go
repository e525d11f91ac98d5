package intake

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/opensource-finance/settle/internal/domain"
)

// ParseRapidPostCSV parses the RapidPost shipment export.
//
// Columns are matched by header name, case-insensitively:
//
//	tracking_number,status,city,booking_date,transaction_date,cod_amount,upfront_payment,reversal_fee,reversal_tax
//
// Only tracking_number, status and cod_amount are required.
func ParseRapidPostCSV(data []byte) ([]domain.OrderRecord, error) {
	rows, err := readCSV(data, "tracking_number", "status", "cod_amount")
	if err != nil {
		return nil, fmt.Errorf("rapidpost: %w", err)
	}

	records := make([]domain.OrderRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, domain.OrderRecord{
			Source:          domain.SourceRapidPost,
			TrackingID:      row["tracking_number"],
			Status:          row["status"],
			Courier:         string(domain.SourceRapidPost),
			City:            row["city"],
			OrderDate:       row["booking_date"],
			TransactionDate: row["transaction_date"],
			Amount:          domain.RawAmount(row["cod_amount"]),
			UpfrontPayment:  domain.RawAmount(row["upfront_payment"]),
			ReversalFee:     domain.RawAmount(row["reversal_fee"]),
			ReversalTax:     domain.RawAmount(row["reversal_tax"]),
		})
	}
	return records, nil
}

// readCSV reads a headed CSV into one map per row keyed by lower-cased
// header. Rows shorter than the header are padded with empty values.
func readCSV(data []byte, required ...string) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for _, col := range required {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var rows []map[string]string
	lineNum := 1
	for {
		lineNum++
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
