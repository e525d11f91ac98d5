// Package intake fetches order and receipt feeds from the configured sources
// and assembles them into one snapshot for the engine.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/settle/internal/domain"
)

// ErrUnsupportedSource is returned when no parser exists for a source.
var ErrUnsupportedSource = errors.New("unsupported source")

// Fetcher retrieves one source's orders and receipts.
type Fetcher interface {
	Source() domain.Source
	FetchOrders(ctx context.Context) ([]domain.OrderRecord, error)
	FetchReceipts(ctx context.Context) ([]domain.Receipt, error)
}

// Kinds of payload a source exposes. Used in cache keys.
const (
	KindOrders   = "orders"
	KindReceipts = "receipts"
)

// NewFetchers builds a fetcher per configured source.
func NewFetchers(sources []domain.SourceConfig, cache domain.Cache) ([]Fetcher, error) {
	out := make([]Fetcher, 0, len(sources))
	for _, sc := range sources {
		switch sc.Kind {
		case "http":
			out = append(out, NewHTTPFetcher(sc, nil, cache))
		case "file", "":
			out = append(out, NewFileFetcher(sc))
		default:
			return nil, fmt.Errorf("source %s: unsupported kind %q", sc.Source, sc.Kind)
		}
	}
	return out, nil
}
