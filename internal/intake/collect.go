package intake

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/metrics"
)

var tracer = otel.Tracer("settle-intake")

// DefaultTimeout bounds a source fetch when none is configured.
const DefaultTimeout = 15 * time.Second

// Snapshot is the deduplicated result of fetching every source once.
type Snapshot struct {
	Orders    []domain.OrderRecord
	Receipts  map[domain.Source][]domain.Receipt
	Sources   []domain.SourceStatus
	Partial   bool
	FetchedAt time.Time
}

// Collector fetches every source in parallel.
type Collector struct {
	// Timeout bounds each source independently.
	Timeout time.Duration

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Collect fetches all sources in parallel with the given per-source timeout.
func Collect(ctx context.Context, fetchers []Fetcher, timeout time.Duration) *Snapshot {
	c := &Collector{Timeout: timeout}
	return c.Collect(ctx, fetchers)
}

// Collect fetches every source once. A failing source is recorded in the
// snapshot and marks it partial; the others still contribute. Nothing is
// retried.
func (c *Collector) Collect(ctx context.Context, fetchers []Fetcher) *Snapshot {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type result struct {
		orders   []domain.OrderRecord
		receipts []domain.Receipt
		status   domain.SourceStatus
	}
	results := make([]result, len(fetchers))

	// Fetch functions never return an error so one source cannot cancel
	// the others.
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range fetchers {
		g.Go(func() error {
			orders, receipts, status := c.fetchOne(gctx, f, timeout)
			results[i] = result{orders: orders, receipts: receipts, status: status}
			return nil
		})
	}
	_ = g.Wait()

	snap := &Snapshot{
		Receipts:  make(map[domain.Source][]domain.Receipt),
		Sources:   make([]domain.SourceStatus, 0, len(fetchers)),
		FetchedAt: time.Now().UTC(),
	}
	var all []domain.OrderRecord
	for _, r := range results {
		snap.Sources = append(snap.Sources, r.status)
		if !r.status.OK {
			snap.Partial = true
			continue
		}
		all = append(all, r.orders...)
		snap.Receipts[r.status.Source] = append(snap.Receipts[r.status.Source], r.receipts...)
	}
	snap.Orders = Dedupe(all)
	return snap
}

func (c *Collector) fetchOne(ctx context.Context, f Fetcher, timeout time.Duration) ([]domain.OrderRecord, []domain.Receipt, domain.SourceStatus) {
	src := f.Source()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "intake.fetch", trace.WithAttributes(attribute.String("source", string(src))))
	defer span.End()

	start := time.Now()
	status := domain.SourceStatus{Source: src}

	orders, err := f.FetchOrders(ctx)
	var receipts []domain.Receipt
	if err == nil {
		receipts, err = f.FetchReceipts(ctx)
	}

	elapsed := time.Since(start)
	status.DurationMs = elapsed.Milliseconds()
	c.Metrics.ObserveFetch(src, elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("source fetch failed", "source", src, "duration_ms", status.DurationMs, "error", err)
		status.Error = err.Error()
		return nil, nil, status
	}

	status.OK = true
	status.Orders = len(orders)
	status.Receipts = len(receipts)
	span.SetAttributes(attribute.Int("orders", len(orders)), attribute.Int("receipts", len(receipts)))
	slog.Debug("source fetched", "source", src, "orders", len(orders), "receipts", len(receipts), "duration_ms", status.DurationMs)
	return orders, receipts, status
}

// Dedupe removes repeated (source, tracking id) pairs. The last occurrence
// wins and takes the position of the first. Records without a tracking id
// are kept as they are.
func Dedupe(records []domain.OrderRecord) []domain.OrderRecord {
	type key struct {
		src domain.Source
		id  string
	}
	index := make(map[key]int, len(records))
	out := make([]domain.OrderRecord, 0, len(records))
	for _, r := range records {
		if r.TrackingID == "" {
			out = append(out, r)
			continue
		}
		k := key{r.Source, r.TrackingID}
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}
