package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studio/internal/services"
	"studio/internal/store"
)

// reservations tracks admitted work that is not yet visible in the store.
// Counting and admitting happen under one lock, so concurrent callers cannot
// all pass the same remaining allowance.
type reservations struct {
	mu      sync.Mutex
	pending map[string]int
}

func newReservations() *reservations {
	return &reservations{pending: make(map[string]int)}
}

// admit reserves one unit for key when stored plus pending stays below limit.
// The returned release must be called exactly once after the work is stored
// or abandoned.
func (r *reservations) admit(key string, limit int, stored func() (int, error), exceeded func() error) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used, err := stored()
	if err != nil {
		return nil, err
	}
	if used+r.pending[key] >= limit {
		return nil, exceeded()
	}
	r.pending[key]++

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.pending[key] <= 1 {
				delete(r.pending, key)
				return
			}
			r.pending[key]--
		})
	}, nil
}

func noopRelease() {}

// ReserveScript admits one script against the plan's monthly quota. The
// caller releases the reservation once the script is saved or abandoned.
// A nil user is the anonymous demo caller and is not metered.
func (s *Service) ReserveScript(ctx context.Context, user *store.User) (func(), error) {
	if user == nil {
		return noopRelease, nil
	}
	plan := PlanOrDefault(user.Plan)
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.scriptQuota.admit(user.ID, plan.Limits.ScriptsPerMonth,
		func() (int, error) {
			used, err := s.store.CountScripts(ctx, store.ScriptFilter{UserID: user.ID, Since: monthStart})
			if err != nil {
				return 0, fmt.Errorf("count monthly scripts: %w", err)
			}
			return used, nil
		},
		func() error {
			return services.Wrap(services.ErrQuotaExceeded, "generate script",
				fmt.Sprintf("monthly script limit of %d reached for the %s plan", plan.Limits.ScriptsPerMonth, plan.ID), nil)
		},
	)
}

// ReserveAPICall admits one API call against the plan's daily allowance. The
// caller releases the reservation after the call's api_call event is
// recorded. Unknown and anonymous users pass unmetered.
func (s *Service) ReserveAPICall(ctx context.Context, userID string) (func(), error) {
	user, err := s.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return noopRelease, nil
	}
	plan := PlanOrDefault(user.Plan)
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.apiQuota.admit(user.ID, plan.Limits.APICallsPerDay,
		func() (int, error) {
			used, err := s.store.CountEvents(ctx, store.EventFilter{
				UserID: user.ID,
				Types:  []store.EventType{store.EventAPICall},
				Since:  dayStart,
			})
			if err != nil {
				return 0, fmt.Errorf("count api calls: %w", err)
			}
			return used, nil
		},
		func() error {
			return services.Wrap(services.ErrQuotaExceeded, "api limit",
				fmt.Sprintf("daily API call limit of %d reached for the %s plan", plan.Limits.APICallsPerDay, plan.ID), nil)
		},
	)
}
