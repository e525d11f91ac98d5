// Settle - COD reconciliation and alerting for multi-courier sellers.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/settle/internal/api"
	"github.com/opensource-finance/settle/internal/bus"
	"github.com/opensource-finance/settle/internal/cache"
	"github.com/opensource-finance/settle/internal/config"
	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/engine"
	"github.com/opensource-finance/settle/internal/fees"
	"github.com/opensource-finance/settle/internal/intake"
	"github.com/opensource-finance/settle/internal/metrics"
	"github.com/opensource-finance/settle/internal/repository"
	"github.com/opensource-finance/settle/internal/rules"
	"github.com/opensource-finance/settle/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settle: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("settle stopped", "error", err)
		stop()
		os.Exit(1)
	}
	slog.Info("settle shutdown complete")
}

func setupLogging(cfg *domain.Config) {
	opts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	if cfg.Tracing.Enabled {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
	}

	slog.Info("starting settle",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"sources", len(cfg.Sources),
	)
}

// run wires the backends and serves until ctx is cancelled. The server shuts
// down first, then the deferred closes run: worker, rules, bus, cache,
// repository.
func run(ctx context.Context, cfg *domain.Config) error {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("repository: %w", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer busImpl.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	if local, ok := cacheImpl.(interface{ Stats() domain.CacheStats }); ok {
		metrics.RegisterCache(reg, local.Stats)
	}

	ruleEngine, err := rules.NewEngine(100)
	if err != nil {
		return fmt.Errorf("rule engine: %w", err)
	}
	defer ruleEngine.Close()
	if err := loadRules(ctx, repo, ruleEngine); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	fetchers, err := intake.NewFetchers(cfg.Sources, cacheImpl)
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}

	processor := engine.NewProcessor()
	processor.Rules = ruleEngine
	processor.Thresholds = cfg.Engine.Thresholds
	processor.AcceptedStatuses = cfg.Engine.AcceptedStatuses
	processor.Fees = feeRegistry(cfg.Engine.FeeSchedules)

	runner := &worker.Runner{
		Processor: processor,
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Metrics:   m,
		Collector: &intake.Collector{Timeout: cfg.Engine.FetchTimeout, Metrics: m},
		Fetchers:  fetchers,
	}

	slog.Info("backends ready",
		"rules_count", ruleEngine.RulesCount(),
		"fetchers", len(fetchers),
	)

	if cfg.Worker.Enabled {
		queue := worker.Config{TenantIDs: cfg.Worker.Tenants}
		runner.Queue = &queue
		w := worker.NewWorker(busImpl, runner)
		if err := w.Start(queue); err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		defer w.Stop()
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, ruleEngine, runner, reg, Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("settle is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cfg, Version)

	return g.Wait()
}

// loadRules loads the stored alert rules into the engine. An empty store is
// seeded with the built-in rules so a fresh install alerts out of the box.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	stored, err := repo.ListAlertRules(ctx, api.GlobalTenantID)
	if err != nil {
		return err
	}

	if len(stored) == 0 {
		stored = rules.BuiltinRules()
		for _, r := range stored {
			if err := repo.SaveAlertRule(ctx, api.GlobalTenantID, r); err != nil {
				return fmt.Errorf("seed rule %s: %w", r.ID, err)
			}
		}
		slog.Info("seeded built-in rules", "count", len(stored))
	}

	return engine.LoadRules(stored)
}

func feeRegistry(overrides []domain.FeeSchedule) *fees.Registry {
	reg := fees.Default()
	for _, fs := range overrides {
		reg = reg.With(fs)
		slog.Info("fee schedule overridden", "source", fs.Source)
	}
	return reg
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  Settle - COD reconciliation engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Sources:  %d\n", len(cfg.Sources))
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /runs               - Run over posted orders and receipts")
	fmt.Println("    POST /runs/collect       - Fetch every source, then run")
	fmt.Println("    GET  /runs               - List recent runs")
	fmt.Println("    GET  /runs/{id}          - Get a run")
	fmt.Println("    GET  /runs/{id}/alerts   - Alerts of a run")
	fmt.Println("    GET  /fees               - Fee schedules in force")
	fmt.Println("    GET  /rules              - List alert rules")
	fmt.Println("    POST /rules              - Create an alert rule")
	fmt.Println("    DELETE /rules/{id}       - Delete an alert rule")
	fmt.Println("    POST /rules/reload       - Hot-reload rules from database")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println("    GET  /metrics            - Prometheus metrics")
	fmt.Println()
}
