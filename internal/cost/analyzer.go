package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"studio/internal/config"
	"studio/internal/logging"
	"studio/internal/services"
	"studio/internal/store"
	"studio/internal/users"
)

const (
	period                = 30 * 24 * time.Hour
	batchThreshold        = 10
	batchSavingsShare     = 0.10
	planReviewUsageShare  = 0.20
	defaultTargetSavings  = 30.0
	maxTargetSavings      = 90.0
	savingsRealization    = 0.8
	trendThresholdPercent = 20.0
)

// Recommendation types.
const (
	RecommendProviderSwitch  = "provider_switch"
	RecommendBatchProcessing = "batch_processing"
	RecommendPlanReview      = "plan_review"
)

// Optimization strategies.
const (
	StrategyProviderOptimization = "provider_optimization"
	StrategyBatchProcessing      = "batch_processing"
)

// Trends compares the last 30 days of spend with the 30 days before.
type Trends struct {
	Trend                string  `json:"trend"`
	MonthlyChange        float64 `json:"monthly_change"`
	ProjectedMonthlyCost float64 `json:"projected_monthly_cost"`
}

// Recommendation is one suggested saving.
type Recommendation struct {
	Type             string  `json:"type"`
	Description      string  `json:"description"`
	PotentialSavings float64 `json:"potential_savings"`
	Impact           string  `json:"impact"`
}

// Analysis is a user's spend report.
type Analysis struct {
	UserID               string             `json:"user_id"`
	TotalCost            float64            `json:"total_cost"`
	ScriptCount          int                `json:"script_count"`
	AverageCostPerScript float64            `json:"average_cost_per_script"`
	CostBreakdown        map[string]float64 `json:"cost_breakdown"`
	Trends               Trends             `json:"trends"`
	Recommendations      []Recommendation   `json:"recommendations"`
	GeneratedAt          time.Time          `json:"generated_at"`
}

// OptimizeRequest carries the savings target as a percent. A nil target
// means 30.
type OptimizeRequest struct {
	TargetSavings *float64 `json:"target_savings"`
}

// Plan describes the strategies chosen for a user.
type Plan struct {
	UserID        string   `json:"user_id"`
	Strategies    []string `json:"strategies"`
	TargetSavings float64  `json:"target_savings"`
}

// Results reports what was applied.
type Results struct {
	Status            string   `json:"status"`
	StrategiesApplied []string `json:"strategies_applied"`
	PreferredProvider string   `json:"preferred_provider"`
}

// Optimization is the outcome of Optimize.
type Optimization struct {
	UserID           string    `json:"user_id"`
	OptimizationPlan Plan      `json:"optimization_plan"`
	Results          Results   `json:"results"`
	EstimatedSavings float64   `json:"estimated_savings"`
	AppliedAt        time.Time `json:"applied_at"`
}

// Options wires an Analyzer.
type Options struct {
	Store   store.Store
	Users   *users.Service
	Pricing config.Pricing
	// Providers lists the enabled LLM providers. When empty the template
	// generator is the only option.
	Providers []string
	Logger    *slog.Logger
}

// Analyzer reports spend and applies cost optimizations.
type Analyzer struct {
	store     store.Store
	users     *users.Service
	pricing   config.Pricing
	providers []string
	logger    *slog.Logger
	now       func() time.Time
}

// NewAnalyzer validates options and returns an Analyzer.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if opts.Store == nil {
		return nil, errors.New("store required")
	}
	if opts.Users == nil {
		return nil, errors.New("users service required")
	}
	return &Analyzer{
		store:     opts.Store,
		users:     opts.Users,
		pricing:   opts.Pricing,
		providers: append([]string(nil), opts.Providers...),
		logger:    logging.NewComponentLogger(opts.Logger, "cost"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Analysis summarizes the user's spend and suggests savings.
func (a *Analyzer) Analysis(ctx context.Context, userID string) (*Analysis, error) {
	scripts, err := a.store.ListScripts(ctx, store.ScriptFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	user, err := a.users.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	out := &Analysis{
		UserID:          userID,
		ScriptCount:     len(scripts),
		CostBreakdown:   make(map[string]float64),
		Recommendations: []Recommendation{},
		GeneratedAt:     now,
	}
	for _, s := range scripts {
		out.TotalCost += s.Cost
		out.CostBreakdown[s.Provider] += s.Cost
	}
	for provider, spend := range out.CostBreakdown {
		out.CostBreakdown[provider] = roundTo(spend, 4)
	}
	out.TotalCost = roundTo(out.TotalCost, 4)
	if len(scripts) > 0 {
		out.AverageCostPerScript = roundTo(out.TotalCost/float64(len(scripts)), 4)
	}

	w := splitWindows(scripts, now)
	out.Trends = trends(w)
	out.Recommendations = a.recommend(w, user, now)
	return out, nil
}

// windows holds the scripts of the last period and the period before it.
type windows struct {
	recent      []*store.Script
	recentSpend float64
	priorSpend  float64
}

func splitWindows(scripts []*store.Script, now time.Time) windows {
	var w windows
	recentStart := now.Add(-period)
	priorStart := now.Add(-2 * period)
	for _, s := range scripts {
		switch {
		case !s.CreatedAt.Before(recentStart):
			w.recent = append(w.recent, s)
			w.recentSpend += s.Cost
		case !s.CreatedAt.Before(priorStart):
			w.priorSpend += s.Cost
		}
	}
	return w
}

func trends(w windows) Trends {
	var change float64
	switch {
	case w.priorSpend > 0:
		change = (w.recentSpend - w.priorSpend) / w.priorSpend * 100
	case w.recentSpend > 0:
		change = 100
	}
	t := Trends{
		Trend:                "stable",
		MonthlyChange:        roundTo(change, 2),
		ProjectedMonthlyCost: projectMonthly(w.recentSpend),
	}
	switch {
	case change > trendThresholdPercent:
		t.Trend = "increasing"
	case change < -trendThresholdPercent:
		t.Trend = "decreasing"
	}
	return t
}

func (a *Analyzer) recommend(w windows, user *store.User, now time.Time) []Recommendation {
	recs := []Recommendation{}
	outlay := w.recentSpend
	var plan users.Plan
	if user != nil {
		plan = users.PlanOrDefault(user.Plan)
		outlay += plan.Price
	}

	if current, spend := dominantPaidProvider(w.recent); current != "" {
		cheapest := a.cheapestProvider()
		currentPrice := a.pricing.CostPer1KTokens(current)
		cheapPrice := a.pricing.CostPer1KTokens(cheapest)
		if cheapest != current && currentPrice > 0 && cheapPrice < currentPrice {
			savings := spend * (1 - cheapPrice/currentPrice)
			recs = append(recs, Recommendation{
				Type: RecommendProviderSwitch,
				Description: fmt.Sprintf("Switch from %s to %s for script generation to save %.0f%%",
					current, cheapest, (1-cheapPrice/currentPrice)*100),
				PotentialSavings: roundTo(savings, 4),
				Impact:           impact(savings, outlay),
			})
		}
	}

	if len(w.recent) >= batchThreshold {
		savings := w.recentSpend * batchSavingsShare
		recs = append(recs, Recommendation{
			Type:             RecommendBatchProcessing,
			Description:      "Process multiple scripts in batches",
			PotentialSavings: roundTo(savings, 4),
			Impact:           impact(savings, outlay),
		})
	}

	if user != nil && plan.Price > 0 {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		used := 0
		for _, s := range w.recent {
			if !s.CreatedAt.Before(monthStart) {
				used++
			}
		}
		if float64(used) < float64(plan.Limits.ScriptsPerMonth)*planReviewUsageShare {
			if lower, ok := lowerPlan(plan); ok {
				savings := plan.Price - lower.Price
				recs = append(recs, Recommendation{
					Type: RecommendPlanReview,
					Description: fmt.Sprintf("You used %d of %d scripts this month; the %s plan may be enough",
						used, plan.Limits.ScriptsPerMonth, lower.Name),
					PotentialSavings: roundTo(savings, 2),
					Impact:           impact(savings, outlay),
				})
			}
		}
	}
	return recs
}

// dominantPaidProvider returns the LLM provider with the highest spend.
func dominantPaidProvider(scripts []*store.Script) (string, float64) {
	spend := make(map[string]float64)
	for _, s := range scripts {
		if s.Provider == "" || s.Provider == config.ProviderTemplate {
			continue
		}
		spend[s.Provider] += s.Cost
	}
	var best string
	var bestSpend float64
	for provider, v := range spend {
		if best == "" || v > bestSpend || (v == bestSpend && provider < best) {
			best, bestSpend = provider, v
		}
	}
	return best, bestSpend
}

// cheapestProvider returns the enabled LLM provider with the lowest price,
// or the template generator when none is enabled.
func (a *Analyzer) cheapestProvider() string {
	if len(a.providers) == 0 {
		return config.ProviderTemplate
	}
	best := a.providers[0]
	for _, p := range a.providers[1:] {
		if a.pricing.CostPer1KTokens(p) < a.pricing.CostPer1KTokens(best) {
			best = p
		}
	}
	return best
}

func lowerPlan(current users.Plan) (users.Plan, bool) {
	var candidates []users.Plan
	for _, id := range users.PlanIDs() {
		p, _ := users.LookupPlan(id)
		if p.Price < current.Price {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return users.Plan{}, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Price > candidates[j].Price })
	return candidates[0], true
}

func impact(savings, outlay float64) string {
	if outlay <= 0 {
		return "low"
	}
	share := savings / outlay
	switch {
	case share >= 0.40:
		return "high"
	case share >= 0.15:
		return "medium"
	default:
		return "low"
	}
}

// Optimize builds a savings plan for the user and applies it by pointing the
// user's preferred provider at the cheapest enabled provider.
func (a *Analyzer) Optimize(ctx context.Context, userID string, req OptimizeRequest) (*Optimization, error) {
	target := defaultTargetSavings
	if req.TargetSavings != nil {
		target = *req.TargetSavings
	}
	if math.IsNaN(target) || target < 0 || target > maxTargetSavings {
		return nil, services.Wrap(services.ErrValidation, "optimize costs", "target_savings must be between 0 and 90", nil)
	}
	user, err := a.users.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, services.Wrap(services.ErrNotFound, "optimize costs", "user not found", nil)
	}
	scripts, err := a.store.ListScripts(ctx, store.ScriptFilter{UserID: userID, Since: a.now().Add(-period)})
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}

	cheapest := a.cheapestProvider()
	current, _ := dominantPaidProvider(scripts)
	if current == "" {
		current = user.Preferences.PreferredProvider
	}
	if current == "" && len(a.providers) > 0 {
		current = a.providers[0]
	}
	plan := Plan{UserID: userID, TargetSavings: target}
	if current != "" && a.pricing.CostPer1KTokens(cheapest) < a.pricing.CostPer1KTokens(current) {
		plan.Strategies = append(plan.Strategies, StrategyProviderOptimization)
	}
	plan.Strategies = append(plan.Strategies, StrategyBatchProcessing)

	if err := a.users.SetPreferredProvider(ctx, userID, cheapest); err != nil {
		return nil, err
	}

	var spend float64
	for _, s := range scripts {
		spend += s.Cost
	}
	projected := projectMonthly(spend)
	result := &Optimization{
		UserID:           userID,
		OptimizationPlan: plan,
		Results: Results{
			Status:            "applied",
			StrategiesApplied: plan.Strategies,
			PreferredProvider: cheapest,
		},
		EstimatedSavings: roundTo(projected*target/100*savingsRealization, 4),
		AppliedAt:        a.now(),
	}
	logging.WithContext(ctx, a.logger).Info("cost optimization applied",
		logging.String(logging.FieldUserID, userID),
		logging.String("preferred_provider", cheapest),
		logging.Float64("target_savings", target),
		logging.Float64("estimated_savings", result.EstimatedSavings),
	)
	return result, nil
}

// projectMonthly extrapolates the daily average of a 30 day spend.
func projectMonthly(spend float64) float64 {
	daily := spend / 30
	return roundTo(daily*30, 4)
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
