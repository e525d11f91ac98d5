package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/opensource-finance/settle/internal/domain"
)

func courierStats(key string, total, delivered, returned, cancelled int) domain.GroupStats {
	s := domain.GroupStats{
		Group:     domain.GroupCourier,
		Key:       key,
		Total:     total,
		Delivered: delivered,
		Returned:  returned,
		Cancelled: cancelled,
	}
	if total > 0 {
		s.ReturnRate = float64(returned) / float64(total) * 100
		s.DeliveryRate = float64(delivered) / float64(total) * 100
	}
	return s
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.AlertRule{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "return_rate > 30.0",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestValidateRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name    string
		rule    *domain.AlertRule
		wantErr bool
	}{
		{"Nil", nil, true},
		{"InvalidSyntax", &domain.AlertRule{ID: "bad", Expression: "this is not valid CEL !!!"}, true},
		{"UnknownVariable", &domain.AlertRule{ID: "bad", Expression: "amount > 1.0"}, true},
		{"StringResult", &domain.AlertRule{ID: "bad", Expression: "key"}, true},
		{"UnknownGroup", &domain.AlertRule{ID: "bad", Expression: "total > 1", Group: "region"}, true},
		{"Bool", &domain.AlertRule{ID: "ok", Expression: "returned > 3"}, false},
		{"Double", &domain.AlertRule{ID: "ok", Expression: "net_amount / 100.0", Group: domain.GroupCity}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.ValidateRule(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if engine.RulesCount() != 0 {
		t.Errorf("validation must not load rules, got %d", engine.RulesCount())
	}
}

func TestEvaluateBands(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	twenty := 20.0
	forty := 40.0

	rule := &domain.AlertRule{
		ID:         "return-rate",
		Name:       "Return Rate",
		Expression: "return_rate",
		Group:      domain.GroupCourier,
		Bands: []domain.RuleBand{
			{UpperLimit: &twenty, Reason: "normal"},
			{LowerLimit: &twenty, UpperLimit: &forty, Severity: domain.SeverityWarning, Reason: "elevated returns"},
			{LowerLimit: &forty, Severity: domain.SeverityCritical, Reason: "heavy returns"},
		},
		Enabled: true,
	}
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	stats := []domain.GroupStats{
		courierStats("citylink", 10, 9, 1, 0),
		courierStats("rapidpost", 10, 7, 3, 0),
		courierStats("storefront", 10, 5, 5, 0),
		{Group: domain.GroupCity, Key: "Lahore", Total: 10, Returned: 9, ReturnRate: 90},
	}

	alerts, err := engine.Evaluate(context.Background(), stats)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(alerts))
	}
	if alerts[0].SubjectKey != "rapidpost" || alerts[0].Severity != domain.SeverityWarning {
		t.Errorf("expected rapidpost warning, got %s %s", alerts[0].SubjectKey, alerts[0].Severity)
	}
	if alerts[1].SubjectKey != "storefront" || alerts[1].Severity != domain.SeverityCritical {
		t.Errorf("expected storefront critical, got %s %s", alerts[1].SubjectKey, alerts[1].Severity)
	}
	if alerts[1].Type != domain.AlertCustomRule {
		t.Errorf("expected custom_rule type, got %s", alerts[1].Type)
	}
	if alerts[1].Details.RuleID != "return-rate" || alerts[1].Details.Score != 50 {
		t.Errorf("unexpected details: %+v", alerts[1].Details)
	}
	if alerts[1].Details.Reason != "heavy returns" {
		t.Errorf("expected band reason, got %q", alerts[1].Details.Reason)
	}
}

func TestEvaluateBooleanRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.AlertRule{
		ID:         "any-cancelled",
		Expression: "cancelled > 0",
		Enabled:    true,
	})

	stats := []domain.GroupStats{
		courierStats("citylink", 4, 4, 0, 0),
		courierStats("rapidpost", 4, 3, 0, 1),
	}

	alerts, err := engine.Evaluate(context.Background(), stats)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].SubjectKey != "rapidpost" || alerts[0].Severity != domain.SeverityWarning {
		t.Errorf("unexpected alert: %+v", alerts[0])
	}
}

func TestEvaluateErrorsDoNotStopOtherRows(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.AlertRule{
		ID:         "ratio",
		Expression: "100 / delivered > 20",
		Enabled:    true,
	})

	stats := []domain.GroupStats{
		courierStats("citylink", 4, 0, 4, 0),
		courierStats("rapidpost", 4, 2, 2, 0),
	}

	alerts, err := engine.Evaluate(context.Background(), stats)
	if err == nil {
		t.Error("expected division error for citylink")
	}
	if len(alerts) != 1 || alerts[0].SubjectKey != "rapidpost" {
		t.Errorf("expected rapidpost alert despite error, got %+v", alerts)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		rule := &domain.AlertRule{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "total > 0",
			Group:      domain.GroupCourier,
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	alerts, err := engine.Evaluate(context.Background(), []domain.GroupStats{courierStats("citylink", 1, 1, 0, 0)})
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(alerts) != 10 {
		t.Fatalf("expected 10 alerts, got %d", len(alerts))
	}
	for i := 1; i < len(alerts); i++ {
		if alerts[i-1].Details.RuleID > alerts[i].Details.RuleID {
			t.Errorf("alerts not ordered by rule id at %d", i)
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.AlertRule{ID: "old", Expression: "total > 0", Enabled: true})

	err := engine.ReloadRules([]*domain.AlertRule{
		{ID: "b", Expression: "returned > 1", Enabled: true},
		{ID: "a", Expression: "cancelled > 1", Enabled: true},
		{ID: "off", Expression: "total > 0", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(loaded))
	}
	if loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Errorf("expected [a b], got [%s %s]", loaded[0].ID, loaded[1].ID)
	}

	t.Run("InvalidKeepsPrevious", func(t *testing.T) {
		err := engine.ReloadRules([]*domain.AlertRule{{ID: "broken", Expression: "(((", Enabled: true}})
		if err == nil {
			t.Fatal("expected compile error")
		}
		if engine.RulesCount() != 2 {
			t.Errorf("expected previous 2 rules to survive, got %d", engine.RulesCount())
		}
	})
}

func TestEvaluateNoRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	alerts, err := engine.Evaluate(context.Background(), []domain.GroupStats{courierStats("citylink", 1, 1, 0, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("builtin rules failed to load: %v", err)
	}

	stats := []domain.GroupStats{
		courierStats("citylink", 10, 6, 1, 3),
		{Group: domain.GroupCourier, Key: "storefront", Total: 2, Unknown: 2},
	}
	alerts, err := engine.Evaluate(context.Background(), stats)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %+v", len(alerts), alerts)
	}
	if alerts[0].Details.RuleID != "builtin-cancellation-rate" || alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("unexpected first alert: %+v", alerts[0])
	}
	if alerts[1].Details.RuleID != "builtin-unrecognised-status" || alerts[1].SubjectKey != "storefront" {
		t.Errorf("unexpected second alert: %+v", alerts[1])
	}
}
