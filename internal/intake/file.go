package intake

import (
	"context"
	"fmt"
	"os"

	"github.com/opensource-finance/settle/internal/domain"
)

// FileFetcher reads a source's feeds from local files.
type FileFetcher struct {
	cfg domain.SourceConfig
}

// NewFileFetcher creates a file fetcher.
func NewFileFetcher(cfg domain.SourceConfig) *FileFetcher {
	return &FileFetcher{cfg: cfg}
}

// Source returns the source this fetcher serves.
func (f *FileFetcher) Source() domain.Source {
	return f.cfg.Source
}

// FetchOrders reads and parses the orders file.
func (f *FileFetcher) FetchOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.cfg.OrdersLocation)
	if err != nil {
		return nil, fmt.Errorf("%s orders: %w", f.cfg.Source, err)
	}
	return ParseOrders(f.cfg.Source, data)
}

// FetchReceipts reads and parses the receipts file. No file configured
// means no receipts.
func (f *FileFetcher) FetchReceipts(ctx context.Context) ([]domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.cfg.ReceiptsLocation == "" {
		return []domain.Receipt{}, nil
	}
	data, err := os.ReadFile(f.cfg.ReceiptsLocation)
	if err != nil {
		return nil, fmt.Errorf("%s receipts: %w", f.cfg.Source, err)
	}
	return ParseReceipts(f.cfg.Source, data)
}
