package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/opensource-finance/settle/internal/domain"
)

// CacheTenant namespaces cached source payloads. Sources are configured per
// deployment, not per tenant.
const CacheTenant = "_sources"

// ErrBodyTooLarge is returned when a feed is larger than the fetcher's limit.
var ErrBodyTooLarge = errors.New("feed too large")

// DefaultMaxBodyBytes caps a feed download. A larger body fails the source
// instead of being parsed truncated.
const DefaultMaxBodyBytes = 32 << 20

// HTTPFetcher pulls a source's feeds over HTTP GET. Requests go through a
// per-source rate limiter and successful bodies are cached for CacheTTL.
type HTTPFetcher struct {
	cfg     domain.SourceConfig
	client  *http.Client
	limiter *rate.Limiter
	cache   domain.Cache

	// MaxBodyBytes overrides DefaultMaxBodyBytes when positive.
	MaxBodyBytes int64
}

// NewHTTPFetcher creates an HTTP fetcher. A nil client uses a 30s-timeout
// default; a nil cache disables caching.
func NewHTTPFetcher(cfg domain.SourceConfig, client *http.Client, cache domain.Cache) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPFetcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		cache:   cache,
	}
}

// Source returns the source this fetcher serves.
func (f *HTTPFetcher) Source() domain.Source {
	return f.cfg.Source
}

// FetchOrders downloads and parses the order feed.
func (f *HTTPFetcher) FetchOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	body, err := f.get(ctx, KindOrders, f.cfg.OrdersLocation)
	if err != nil {
		return nil, err
	}
	return ParseOrders(f.cfg.Source, body)
}

// FetchReceipts downloads and parses the receipt feed. A source without a
// receipts URL reports none.
func (f *HTTPFetcher) FetchReceipts(ctx context.Context) ([]domain.Receipt, error) {
	if f.cfg.ReceiptsLocation == "" {
		return []domain.Receipt{}, nil
	}
	body, err := f.get(ctx, KindReceipts, f.cfg.ReceiptsLocation)
	if err != nil {
		return nil, err
	}
	return ParseReceipts(f.cfg.Source, body)
}

// CacheKey returns the cache key for one of a source's payloads.
func CacheKey(src domain.Source, kind string) string {
	return fmt.Sprintf("intake:%s:%s", src, kind)
}

func (f *HTTPFetcher) get(ctx context.Context, kind, url string) ([]byte, error) {
	key := CacheKey(f.cfg.Source, kind)
	if f.cache != nil && f.cfg.CacheTTL > 0 {
		if cached, err := f.cache.Get(ctx, CacheTenant, key); err == nil && cached != nil {
			return cached, nil
		} else if err != nil {
			slog.Warn("source cache read failed", "source", f.cfg.Source, "kind", kind, "error", err)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: rate limit: %w", f.cfg.Source, kind, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", f.cfg.Source, kind, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", f.cfg.Source, kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: unexpected status %d", f.cfg.Source, kind, resp.StatusCode)
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", f.cfg.Source, kind, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%s %s: %w: body exceeds %d bytes", f.cfg.Source, kind, ErrBodyTooLarge, limit)
	}

	if f.cache != nil && f.cfg.CacheTTL > 0 {
		if err := f.cache.Set(ctx, CacheTenant, key, body, f.cfg.CacheTTL); err != nil {
			slog.Warn("source cache write failed", "source", f.cfg.Source, "kind", kind, "error", err)
		}
	}
	return body, nil
}
