// Package rules provides the CEL-Go based custom alert rule engine.
package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/settle/internal/domain"
)

// Engine evaluates operator-defined CEL rules over per-courier and per-city
// statistics.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.AlertRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("group", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("total", cel.IntType),
		cel.Variable("delivered", cel.IntType),
		cel.Variable("returned", cel.IntType),
		cel.Variable("in_transit", cel.IntType),
		cel.Variable("cancelled", cel.IntType),
		cel.Variable("unknown", cel.IntType),
		cel.Variable("return_rate", cel.DoubleType),
		cel.Variable("delivery_rate", cel.DoubleType),
		cel.Variable("gross_amount", cel.DoubleType),
		cel.Variable("net_amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.AlertRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if cfg.Group != "" && cfg.Group != domain.GroupCourier && cfg.Group != domain.GroupCity {
		return fmt.Errorf("rule %s: unsupported group %q", cfg.ID, cfg.Group)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules. Disabled rules are skipped.
func (e *Engine) LoadRules(configs []*domain.AlertRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate runs every loaded rule against every matching stats row and
// returns one custom_rule alert per row that lands in a band with a
// severity. Evaluation errors do not stop other rows; they are joined into
// the returned error next to the alerts that did evaluate.
func (e *Engine) Evaluate(ctx context.Context, stats []domain.GroupStats) ([]domain.Alert, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(stats) == 0 {
		return []domain.Alert{}, nil
	}

	activations := make([]map[string]any, len(stats))
	for i, s := range stats {
		activations[i] = activation(s)
	}

	// Parallel evaluation using worker pool pattern
	alertsByRule := make([][]domain.Alert, len(rules))
	errsByRule := make([]error, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			alertsByRule[idx], errsByRule[idx] = e.evaluateRule(ctx, r, stats, activations)
		}(i, rule)
	}

	wg.Wait()

	out := make([]domain.Alert, 0)
	for _, a := range alertsByRule {
		out = append(out, a...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Details.RuleID != out[j].Details.RuleID {
			return out[i].Details.RuleID < out[j].Details.RuleID
		}
		return out[i].SubjectKey < out[j].SubjectKey
	})
	return out, errors.Join(errsByRule...)
}

// evaluateRule evaluates one rule over every row of its group.
func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, stats []domain.GroupStats, activations []map[string]any) ([]domain.Alert, error) {
	var alerts []domain.Alert
	var errs []error

	for i, s := range stats {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if rule.Config.Group != "" && rule.Config.Group != s.Group {
			continue
		}

		out, _, err := rule.Program.Eval(activations[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s on %s %q: %w", rule.Config.ID, s.Group, s.Key, err))
			continue
		}

		score := toScore(out)
		severity, reason, ok := matchBand(score, rule.Config.Bands)
		if !ok {
			continue
		}

		alerts = append(alerts, domain.Alert{
			Type:       domain.AlertCustomRule,
			Severity:   severity,
			SubjectKey: s.Key,
			Details: domain.AlertDetails{
				Total:     s.Total,
				Delivered: s.Delivered,
				Returned:  s.Returned,
				InTransit: s.InTransit,
				Cancelled: s.Cancelled,
				RuleID:    rule.Config.ID,
				Score:     score,
				Reason:    reason,
			},
		})
	}
	return alerts, errors.Join(errs...)
}

func activation(s domain.GroupStats) map[string]any {
	return map[string]any{
		"group":         s.Group,
		"key":           s.Key,
		"total":         int64(s.Total),
		"delivered":     int64(s.Delivered),
		"returned":      int64(s.Returned),
		"in_transit":    int64(s.InTransit),
		"cancelled":     int64(s.Cancelled),
		"unknown":       int64(s.Unknown),
		"return_rate":   s.ReturnRate,
		"delivery_rate": s.DeliveryRate,
		"gross_amount":  s.GrossAmount,
		"net_amount":    s.NetAmount,
	}
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band containing score. Lower bounds are
// inclusive, upper bounds exclusive; a nil bound is unbounded. A matched band
// without a severity means "no alert".
//
// A rule with no bands alerts at warning severity when the score is positive.
func matchBand(score float64, bands []domain.RuleBand) (domain.Severity, string, bool) {
	if len(bands) == 0 {
		if score > 0 {
			return domain.SeverityWarning, "rule matched", true
		}
		return "", "", false
	}

	for _, band := range bands {
		lower := math.Inf(-1)
		upper := math.Inf(1)
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if band.UpperLimit != nil {
			upper = *band.UpperLimit
		}

		if score >= lower && score < upper {
			if band.Severity == "" {
				return "", band.Reason, false
			}
			return band.Severity, band.Reason, true
		}
	}

	return "", "", false
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations sorted by id.
func (e *Engine) GetLoadedRules() []*domain.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
