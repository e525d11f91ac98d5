package domain

import "github.com/shopspring/decimal"

// FeeSchedule is one source's settlement terms. Rates are percentages of the
// declared gross; flat amounts are per order.
type FeeSchedule struct {
	Source          Source          `json:"source" yaml:"source"`
	FeeRate         decimal.Decimal `json:"feeRate" yaml:"fee_rate"`
	TaxRate         decimal.Decimal `json:"taxRate" yaml:"tax_rate"`
	WithholdingRate decimal.Decimal `json:"withholdingRate" yaml:"withholding_rate"`
	CommissionRate  decimal.Decimal `json:"commissionRate" yaml:"commission_rate"`
	FlatFee         decimal.Decimal `json:"flatFee" yaml:"flat_fee"`

	// Returns cost ReturnFee plus ReturnFeeRate percent of gross.
	ReturnFee     decimal.Decimal `json:"returnFee" yaml:"return_fee"`
	ReturnFeeRate decimal.Decimal `json:"returnFeeRate" yaml:"return_fee_rate"`

	// UseVendorReversal prefers the vendor's reported reversal fee and tax
	// over the schedule for returned parcels when the record carries them.
	UseVendorReversal bool `json:"useVendorReversal" yaml:"use_vendor_reversal"`
}
