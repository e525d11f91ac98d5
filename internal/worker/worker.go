// Package worker executes run requests, either directly for the HTTP API or
// asynchronously from the EventBus.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/settle/internal/bus"
	"github.com/opensource-finance/settle/internal/domain"
)

// Worker consumes run requests from the EventBus.
type Worker struct {
	bus    domain.EventBus
	runner *Runner

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to serve. Empty means every tenant,
	// via the global subscription.
	TenantIDs []string
}

// QueueTenant returns the bus tenant a run request for tenantID must be
// published under to reach a worker started with c. ok is false when the
// worker does not serve tenantID.
func (c Config) QueueTenant(tenantID string) (string, bool) {
	if len(c.TenantIDs) == 0 {
		return domain.GlobalTenant, true
	}
	for _, t := range c.TenantIDs {
		if t == tenantID {
			return tenantID, true
		}
	}
	return "", false
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, runner *Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    eventBus,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins consuming run requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.GlobalTenant)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicRunRequested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("worker subscribed",
		"tenant_id", tenantID,
		"topic", domain.TopicRunRequested,
	)
	return nil
}

// handleMessage decodes a RunRequest and executes it. The payload's tenant
// wins; the bus tenant is used when the payload has none, except for the
// global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.RunRequest
	if err := bus.DecodeJSON(msg, &req); err != nil {
		slog.Error("failed to parse run request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if req.TenantID == "" && msg.TenantID != domain.GlobalTenant {
		req.TenantID = msg.TenantID
	}
	if req.TraceID == "" {
		req.TraceID = msg.ID
	}

	slog.Debug("processing run request",
		"run_id", req.RunID,
		"tenant_id", req.TenantID,
		"trace_id", req.TraceID,
		"collect", req.Collect,
	)

	if _, err := w.runner.Execute(ctx, &req); err != nil {
		slog.Error("run request failed",
			"run_id", req.RunID,
			"tenant_id", req.TenantID,
			"error", err,
		)
		return err
	}
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
