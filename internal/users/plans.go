package users

import (
	"sort"
	"strings"
)

// Plan identifiers.
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// DemoUserID identifies anonymous callers. It never owns an account and is
// exempt from quota checks.
const DemoUserID = "demo_user"

// Limits are the usage allowances granted by a plan.
type Limits struct {
	ScriptsPerMonth int `json:"scripts_per_month"`
	APICallsPerDay  int `json:"api_calls_per_day"`
}

// Plan describes a subscription tier.
type Plan struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Currency string   `json:"currency"`
	Limits   Limits   `json:"limits"`
	Features []string `json:"features"`
}

var plans = map[string]Plan{
	PlanFree: {
		ID:       PlanFree,
		Name:     "Free",
		Price:    0,
		Currency: "USD",
		Limits:   Limits{ScriptsPerMonth: 5, APICallsPerDay: 100},
		Features: []string{"Basic script generation", "Email support"},
	},
	PlanPro: {
		ID:       PlanPro,
		Name:     "Pro",
		Price:    29,
		Currency: "USD",
		Limits:   Limits{ScriptsPerMonth: 50, APICallsPerDay: 1000},
		Features: []string{"Advanced script generation", "Priority support", "Analytics dashboard"},
	},
	PlanEnterprise: {
		ID:       PlanEnterprise,
		Name:     "Enterprise",
		Price:    99,
		Currency: "USD",
		Limits:   Limits{ScriptsPerMonth: 500, APICallsPerDay: 10000},
		Features: []string{"Unlimited script generation", "Dedicated support", "Advanced analytics", "API access", "White-label options"},
	},
}

func normalizePlanID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// LookupPlan returns the plan with the given id.
func LookupPlan(id string) (Plan, bool) {
	p, ok := plans[id]
	if !ok {
		return Plan{}, false
	}
	p.Features = append([]string(nil), p.Features...)
	return p, true
}

// PlanOrDefault returns the plan with the given id, or the free plan.
func PlanOrDefault(id string) Plan {
	if p, ok := LookupPlan(id); ok {
		return p
	}
	p, _ := LookupPlan(PlanFree)
	return p
}

// PlanIDs lists the known plans ordered by price.
func PlanIDs() []string {
	ids := make([]string, 0, len(plans))
	for id := range plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return plans[ids[i]].Price < plans[ids[j]].Price })
	return ids
}
