package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/settle/internal/cache"
	"github.com/opensource-finance/settle/internal/domain"
	"github.com/opensource-finance/settle/internal/repository"
	"github.com/opensource-finance/settle/internal/rules"
	"github.com/opensource-finance/settle/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rules.Engine
	runner  *worker.Runner
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, runner *worker.Runner, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		runner:  runner,
		version: version,
	}
}

// RunRequestBody is the request body for POST /runs and POST /runs/collect.
type RunRequestBody struct {
	Window     domain.WindowKind                  `json:"window"`
	Orders     []domain.OrderRecord               `json:"orders"`
	Receipts   map[domain.Source][]domain.Receipt `json:"receipts,omitempty"`
	Thresholds *domain.Thresholds                 `json:"thresholds,omitempty"`

	// Async queues the run on the event bus and returns immediately.
	Async bool `json:"async,omitempty"`
}

// QueuedResponse is returned for asynchronous runs.
type QueuedResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	TraceID string `json:"traceId"`
}

// CreateRun handles POST /runs with inline orders and receipts.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	h.run(w, r, body, false)
}

// CollectRun handles POST /runs/collect: fetch every configured source, then run.
// The body is optional; only window, thresholds and async are read.
func (h *Handler) CollectRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	body.Orders = nil
	body.Receipts = nil

	h.run(w, r, body, true)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request, body RunRequestBody, collect bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	if _, err := domain.ParseWindow(string(body.Window)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	req := &domain.RunRequest{
		RunID:      uuid.New().String(),
		TenantID:   tenantID,
		TraceID:    traceID,
		Window:     body.Window,
		Orders:     body.Orders,
		Receipts:   body.Receipts,
		Thresholds: body.Thresholds,
		Collect:    collect,
	}

	if body.Async {
		err := h.runner.Enqueue(ctx, req)
		if errors.Is(err, worker.ErrNoWorker) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": err.Error(),
			})
			return
		}
		if err != nil {
			slog.Error("failed to queue run", "run_id", req.RunID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to queue run",
			})
			return
		}
		writeJSON(w, http.StatusAccepted, QueuedResponse{RunID: req.RunID, Status: "queued", TraceID: traceID})
		return
	}

	run, err := h.runner.Execute(ctx, req)
	switch {
	case errors.Is(err, worker.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, worker.ErrNoSources):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case err != nil:
		slog.Error("run failed", "run_id", req.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "run failed"})
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// ListRuns returns recent run summaries, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	runs, err := h.repo.ListRuns(r.Context(), GetTenantID(r.Context()), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list runs",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun retrieves a run by ID, reading through the cache.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunAlerts returns a run's alerts, optionally filtered by ?severity=.
func (h *Handler) GetRunAlerts(w http.ResponseWriter, r *http.Request) {
	run, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	severity := domain.Severity(r.URL.Query().Get("severity"))
	alerts := make([]domain.Alert, 0, len(run.Alerts))
	for _, a := range run.Alerts {
		if severity == "" || a.Severity == severity {
			alerts = append(alerts, a)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":  run.ID,
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*domain.Run, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	runID := chi.URLParam(r, "id")

	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "run id is required",
		})
		return nil, false
	}

	if h.cache != nil {
		if run, err := cache.GetRun(ctx, h.cache, tenantID, runID); err == nil && run != nil {
			return run, true
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return nil, false
	}

	run, err := h.repo.GetRun(ctx, tenantID, runID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "run not found",
		})
		return nil, false
	}
	if err != nil {
		slog.Error("failed to get run", "run_id", runID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get run",
		})
		return nil, false
	}

	if h.cache != nil {
		if err := cache.SetRun(ctx, h.cache, run, cache.RunTTL); err != nil {
			slog.Warn("failed to cache run", "run_id", runID, "error", err)
		}
	}
	return run, true
}

// ListFees returns the fee schedule table in effect.
func (h *Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	schedules := h.runner.Processor.Fees.Schedules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	body := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if local, ok := h.cache.(interface{ Stats() domain.CacheStats }); ok {
		body["cache"] = local.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GlobalTenantID is the repository tenant for rules that apply to all tenants.
const GlobalTenantID = "*"

// ListRules returns the rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetRule retrieves a rule by ID. Loaded rules are checked first, then
// stored ones, so a saved but not yet reloaded rule is still visible.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	if h.repo != nil {
		rule, err := h.repo.GetAlertRule(r.Context(), GlobalTenantID, ruleID)
		if err == nil {
			writeJSON(w, http.StatusOK, rule)
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get rule", "id", ruleID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to get rule",
			})
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Expression  string            `json:"expression"`
	Group       string            `json:"group,omitempty"`
	Bands       []domain.RuleBand `json:"bands"`
	Enabled     bool              `json:"enabled"`
}

// CreateRule validates a rule and saves it. Rules are stored under the
// global tenant and applied by POST /rules/reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	version := req.Version
	if version == "" {
		version = "1.0.0"
	}

	rule := &domain.AlertRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     version,
		Expression:  req.Expression,
		Group:       req.Group,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := h.engine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveAlertRule(r.Context(), GlobalTenantID, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name, "version", rule.Version)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule removes a stored rule. The engine keeps it until the next reload.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	err := h.repo.DeleteAlertRule(r.Context(), GlobalTenantID, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to delete rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete rule",
		})
		return
	}

	slog.Info("rule deleted", "id", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

// ReloadRules replaces the engine's rules with the stored ones.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListAlertRules(r.Context(), GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(stored); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
