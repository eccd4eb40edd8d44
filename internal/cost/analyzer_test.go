package cost

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"studio/internal/auth"
	"studio/internal/config"
	"studio/internal/services"
	"studio/internal/store"
	"studio/internal/testsupport"
	"studio/internal/users"
)

var fixedNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

type harness struct {
	analyzer *Analyzer
	store    store.Store
	users    *users.Service
	userID   string
}

func newHarness(t *testing.T, providers ...string) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	issuer, err := auth.NewIssuer(cfg.Auth)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	userSvc, err := users.NewService(st, issuer, cfg.Auth, nil)
	if err != nil {
		t.Fatalf("users.NewService: %v", err)
	}
	analyzer, err := NewAnalyzer(Options{Store: st, Users: userSvc, Pricing: cfg.Pricing, Providers: providers})
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	analyzer.now = func() time.Time { return fixedNow }
	session, err := userSvc.Register(context.Background(), users.RegisterRequest{Email: "saver@example.com", Password: "password123", Name: "Saver"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return &harness{analyzer: analyzer, store: st, users: userSvc, userID: session.UserID}
}

func (h *harness) addScript(t *testing.T, provider string, cost float64, age time.Duration) {
	t.Helper()
	n, err := h.store.CountScripts(context.Background(), store.ScriptFilter{})
	if err != nil {
		t.Fatalf("CountScripts: %v", err)
	}
	script := &store.Script{
		ID:        fmt.Sprintf("script-%03d", n),
		UserID:    h.userID,
		Topic:     "topic",
		Content:   "content",
		Provider:  provider,
		Cost:      cost,
		CreatedAt: fixedNow.Add(-age),
	}
	if err := h.store.CreateScript(context.Background(), script); err != nil {
		t.Fatalf("CreateScript: %v", err)
	}
}

func findRecommendation(recs []Recommendation, typ string) (Recommendation, bool) {
	for _, r := range recs {
		if r.Type == typ {
			return r, true
		}
	}
	return Recommendation{}, false
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalysisBreakdownAndProviderSwitch(t *testing.T) {
	h := newHarness(t, config.ProviderOpenAI, config.ProviderAnthropic)
	h.addScript(t, config.ProviderOpenAI, 0.03, time.Hour)
	h.addScript(t, config.ProviderOpenAI, 0.03, 2*time.Hour)
	h.addScript(t, config.ProviderTemplate, 0.001, 40*24*time.Hour)

	analysis, err := h.analyzer.Analysis(context.Background(), h.userID)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	if analysis.ScriptCount != 3 {
		t.Fatalf("script_count = %d, want 3", analysis.ScriptCount)
	}
	if !approx(analysis.TotalCost, 0.061) {
		t.Fatalf("total_cost = %v, want 0.061", analysis.TotalCost)
	}
	if !approx(analysis.CostBreakdown[config.ProviderOpenAI], 0.06) {
		t.Fatalf("openai breakdown = %v", analysis.CostBreakdown[config.ProviderOpenAI])
	}
	if analysis.Trends.Trend != "increasing" {
		t.Fatalf("trend = %q, want increasing", analysis.Trends.Trend)
	}
	if !approx(analysis.Trends.ProjectedMonthlyCost, 0.06) {
		t.Fatalf("projected_monthly_cost = %v, want 0.06", analysis.Trends.ProjectedMonthlyCost)
	}

	rec, ok := findRecommendation(analysis.Recommendations, RecommendProviderSwitch)
	if !ok {
		t.Fatalf("expected provider_switch recommendation, got %+v", analysis.Recommendations)
	}
	if !approx(rec.PotentialSavings, 0.03) {
		t.Fatalf("potential_savings = %v, want 0.03", rec.PotentialSavings)
	}
	if rec.Impact != "high" {
		t.Fatalf("impact = %q, want high", rec.Impact)
	}
	if _, ok := findRecommendation(analysis.Recommendations, RecommendBatchProcessing); ok {
		t.Fatal("batch_processing should need at least 10 recent scripts")
	}
}

func TestAnalysisBatchRecommendation(t *testing.T) {
	h := newHarness(t, config.ProviderAnthropic)
	for i := 0; i < 10; i++ {
		h.addScript(t, config.ProviderAnthropic, 0.015, time.Duration(i+1)*time.Hour)
	}
	analysis, err := h.analyzer.Analysis(context.Background(), h.userID)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	rec, ok := findRecommendation(analysis.Recommendations, RecommendBatchProcessing)
	if !ok {
		t.Fatalf("expected batch_processing, got %+v", analysis.Recommendations)
	}
	if !approx(rec.PotentialSavings, 0.015) {
		t.Fatalf("potential_savings = %v, want 0.015", rec.PotentialSavings)
	}
	if _, ok := findRecommendation(analysis.Recommendations, RecommendProviderSwitch); ok {
		t.Fatal("no cheaper provider is enabled")
	}
}

func TestAnalysisPlanReviewForIdlePaidPlan(t *testing.T) {
	h := newHarness(t)
	if _, err := h.users.ChangePlan(context.Background(), h.userID, users.PlanPro); err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	analysis, err := h.analyzer.Analysis(context.Background(), h.userID)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	rec, ok := findRecommendation(analysis.Recommendations, RecommendPlanReview)
	if !ok {
		t.Fatalf("expected plan_review, got %+v", analysis.Recommendations)
	}
	if rec.PotentialSavings != 29 || rec.Impact != "high" {
		t.Fatalf("unexpected plan_review: %+v", rec)
	}
}

func TestAnalysisEmptyUser(t *testing.T) {
	h := newHarness(t)
	analysis, err := h.analyzer.Analysis(context.Background(), users.DemoUserID)
	if err != nil {
		t.Fatalf("Analysis: %v", err)
	}
	if analysis.TotalCost != 0 || analysis.AverageCostPerScript != 0 {
		t.Fatalf("expected zero spend, got %+v", analysis)
	}
	if analysis.Trends.Trend != "stable" || analysis.Recommendations == nil {
		t.Fatalf("unexpected empty analysis: %+v", analysis)
	}
}

func TestOptimizeSetsCheapestProvider(t *testing.T) {
	h := newHarness(t, config.ProviderOpenAI, config.ProviderAnthropic)
	h.addScript(t, config.ProviderOpenAI, 0.03, time.Hour)
	h.addScript(t, config.ProviderOpenAI, 0.03, 2*time.Hour)

	target := 50.0
	result, err := h.analyzer.Optimize(context.Background(), h.userID, OptimizeRequest{TargetSavings: &target})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !approx(result.EstimatedSavings, 0.024) {
		t.Fatalf("estimated_savings = %v, want 0.024", result.EstimatedSavings)
	}
	if result.Results.PreferredProvider != config.ProviderAnthropic {
		t.Fatalf("preferred_provider = %q", result.Results.PreferredProvider)
	}
	if len(result.OptimizationPlan.Strategies) != 2 || result.OptimizationPlan.Strategies[0] != StrategyProviderOptimization {
		t.Fatalf("strategies = %v", result.OptimizationPlan.Strategies)
	}

	user, err := h.store.GetUser(context.Background(), h.userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Preferences.PreferredProvider != config.ProviderAnthropic {
		t.Fatalf("stored preferred_provider = %q", user.Preferences.PreferredProvider)
	}
}

func TestOptimizeDefaultsTarget(t *testing.T) {
	h := newHarness(t)
	result, err := h.analyzer.Optimize(context.Background(), h.userID, OptimizeRequest{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if result.OptimizationPlan.TargetSavings != 30 {
		t.Fatalf("target_savings = %v, want 30", result.OptimizationPlan.TargetSavings)
	}
	if result.Results.PreferredProvider != config.ProviderTemplate {
		t.Fatalf("preferred_provider = %q, want template with no providers enabled", result.Results.PreferredProvider)
	}
}

func TestOptimizeRejects(t *testing.T) {
	h := newHarness(t)
	tooHigh := 95.0
	if _, err := h.analyzer.Optimize(context.Background(), h.userID, OptimizeRequest{TargetSavings: &tooHigh}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.analyzer.Optimize(context.Background(), users.DemoUserID, OptimizeRequest{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for demo user, got %v", err)
	}
}
