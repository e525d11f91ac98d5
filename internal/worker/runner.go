package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/settle/internal/bus"
	"github.com/opensource-finance/settle/internal/cache"
	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/engine"
	"github.com/opensource-finance/settle/internal/intake"
	"github.com/opensource-finance/settle/internal/metrics"
)

var (
	// ErrInvalidRequest wraps request problems the caller can fix.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrNoSources is returned for a collect request when no source is configured.
	ErrNoSources = errors.New("no sources configured")

	// ErrNoWorker is returned by Enqueue when no worker would receive the
	// request.
	ErrNoWorker = errors.New("no worker serves this tenant")
)

// Runner executes one run request end to end: optional collection,
// processing, persistence, caching and publication. It is shared by the
// HTTP API and the bus worker.
type Runner struct {
	Processor *engine.Processor

	// Optional collaborators. A nil one is skipped.
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Metrics   *metrics.Metrics
	Collector *intake.Collector
	Fetchers  []intake.Fetcher

	// Queue is the configuration of the workers consuming Enqueue. Nil
	// means workers listen on the global tenant.
	Queue *Config
}

// Enqueue publishes req for a worker under the bus tenant that worker
// subscribed to.
func (r *Runner) Enqueue(ctx context.Context, req *domain.RunRequest) error {
	if r.Bus == nil {
		return fmt.Errorf("%w: event bus not available", ErrNoWorker)
	}
	target := domain.GlobalTenant
	if r.Queue != nil {
		t, ok := r.Queue.QueueTenant(req.TenantID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoWorker, req.TenantID)
		}
		target = t
	}
	if err := bus.PublishJSON(ctx, r.Bus, target, domain.TopicRunRequested, req); err != nil {
		if errors.Is(err, bus.ErrNoSubscribers) {
			return fmt.Errorf("%w: %v", ErrNoWorker, err)
		}
		return err
	}
	return nil
}

// Execute runs req and returns the finished run. Persistence and
// publication failures are logged, not returned; the run itself stands.
func (r *Runner) Execute(ctx context.Context, req *domain.RunRequest) (*domain.Run, error) {
	start := time.Now()

	if req == nil || req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantId is required", ErrInvalidRequest)
	}
	window, err := domain.ParseWindow(string(req.Window))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	input := &engine.Input{
		RunID:      req.RunID,
		TenantID:   req.TenantID,
		TraceID:    req.TraceID,
		Receipts:   req.Receipts,
		Thresholds: req.Thresholds,
		Window:     window,
	}

	if req.Collect {
		if len(r.Fetchers) == 0 {
			return nil, ErrNoSources
		}
		collector := r.Collector
		if collector == nil {
			collector = &intake.Collector{Metrics: r.Metrics}
		}
		snap := collector.Collect(ctx, r.Fetchers)
		input.Orders = snap.Orders
		input.Receipts = snap.Receipts
		input.Sources = snap.Sources
		input.Partial = snap.Partial
	} else {
		input.Orders = intake.Dedupe(req.Orders)
	}

	run := r.Processor.Process(ctx, input)
	r.Metrics.ObserveRun(run, time.Since(start))

	if r.Repo != nil {
		if err := r.Repo.SaveRun(ctx, run.TenantID, run); err != nil {
			slog.Error("failed to save run",
				"run_id", run.ID,
				"tenant_id", run.TenantID,
				"error", err,
			)
		}
	}

	if r.Cache != nil {
		if err := cache.SetRun(ctx, r.Cache, run, cache.RunTTL); err != nil {
			slog.Warn("failed to cache run",
				"run_id", run.ID,
				"error", err,
			)
		}
	}

	if r.Bus != nil {
		r.publish(ctx, run)
	}

	slog.Info("run completed",
		"run_id", run.ID,
		"tenant_id", run.TenantID,
		"window", run.Window,
		"orders", run.Metadata.RecordsIn,
		"skipped", run.Skipped.Count,
		"alerts", len(run.Alerts),
		"partial", run.Partial,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return run, nil
}

// publish announces the completed run and each actionable alert.
func (r *Runner) publish(ctx context.Context, run *domain.Run) {
	actionable := engine.Actionable(run)

	done := domain.RunCompleted{
		RunID:      run.ID,
		TenantID:   run.TenantID,
		Window:     run.Window,
		Alerts:     len(run.Alerts),
		Actionable: len(actionable),
		Skipped:    run.Skipped.Count,
		Partial:    run.Partial,
		Balance:    engine.TotalBalance(run),
	}
	if err := bus.PublishJSON(ctx, r.Bus, run.TenantID, domain.TopicRunCompleted, done); err != nil {
		slog.Error("failed to publish run completion",
			"run_id", run.ID,
			"error", err,
		)
	}

	for _, a := range actionable {
		ev := domain.AlertEvent{RunID: run.ID, TenantID: run.TenantID, Alert: a}
		if err := bus.PublishJSON(ctx, r.Bus, run.TenantID, domain.TopicAlert, ev); err != nil {
			slog.Error("failed to publish alert",
				"run_id", run.ID,
				"alert_type", a.Type,
				"subject", a.SubjectKey,
				"error", err,
			)
		}
	}
}
