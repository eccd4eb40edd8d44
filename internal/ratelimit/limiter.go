package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"studio/internal/config"
)

// Class names a request budget.
type Class string

// Request classes.
const (
	ClassScriptGeneration Class = "script_generation"
	ClassAPICall          Class = "api_call"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type bucketKey struct {
	key   string
	class Class
}

// Limiter keeps one token bucket per key and class. A nil or disabled
// Limiter allows everything.
type Limiter struct {
	mu      sync.Mutex
	enabled bool
	budgets map[Class]int
	buckets map[bucketKey]*entry
	now     func() time.Time
}

// New builds a Limiter from hourly budgets. Each class refills evenly over an
// hour with a burst equal to the hourly budget.
func New(cfg config.RateLimit) *Limiter {
	return &Limiter{
		enabled: cfg.Enabled,
		budgets: map[Class]int{
			ClassScriptGeneration: cfg.ScriptGenerationPerHour,
			ClassAPICall:          cfg.APICallsPerHour,
		},
		buckets: make(map[bucketKey]*entry),
		now:     time.Now,
	}
}

// Allow consumes one token for key in class. When the bucket is empty it
// reports how long until the next token is available.
func (l *Limiter) Allow(key string, class Class) (bool, time.Duration) {
	if l == nil || !l.enabled {
		return true, 0
	}
	budget := l.budgets[class]
	if budget <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := bucketKey{key: key, class: class}
	e, ok := l.buckets[k]
	if !ok {
		perSecond := rate.Limit(float64(budget) / time.Hour.Seconds())
		e = &entry{limiter: rate.NewLimiter(perSecond, budget)}
		l.buckets[k] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Hour
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// RetryAfterSeconds rounds a delay up to whole seconds, minimum one.
func RetryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

// Sweep drops buckets idle for longer than olderThan and returns how many
// were removed.
func (l *Limiter) Sweep(olderThan time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-olderThan)
	removed := 0
	for k, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked buckets.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
