package ratelimit

import (
	"testing"
	"time"

	"studio/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(scripts, calls int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := New(config.RateLimit{Enabled: true, ScriptGenerationPerHour: scripts, APICallsPerHour: calls})
	l.now = clock.now
	return l, clock
}

func TestAllowExhaustsBurst(t *testing.T) {
	l, clock := newTestLimiter(3, 100)
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("user-1", ClassScriptGeneration); !ok {
			t.Fatalf("request %d rejected", i)
		}
	}
	ok, retry := l.Allow("user-1", ClassScriptGeneration)
	if ok {
		t.Fatal("expected fourth request to be rejected")
	}
	if retry <= 0 || retry > 21*time.Minute {
		t.Fatalf("retry after = %v, want about 20m", retry)
	}

	if ok, _ := l.Allow("user-2", ClassScriptGeneration); !ok {
		t.Fatal("other keys have their own bucket")
	}
	if ok, _ := l.Allow("user-1", ClassAPICall); !ok {
		t.Fatal("classes are independent")
	}

	clock.t = clock.t.Add(21 * time.Minute)
	if ok, _ := l.Allow("user-1", ClassScriptGeneration); !ok {
		t.Fatal("expected a token after refill")
	}
}

func TestRejectedRequestDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(1, 100)
	if ok, _ := l.Allow("k", ClassScriptGeneration); !ok {
		t.Fatal("first request rejected")
	}
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow("k", ClassScriptGeneration); ok {
			t.Fatal("expected rejection")
		}
	}
	clock.t = clock.t.Add(time.Hour)
	if ok, _ := l.Allow("k", ClassScriptGeneration); !ok {
		t.Fatal("rejections must not push the refill further out")
	}
}

func TestDisabledAndNilAllowEverything(t *testing.T) {
	disabled := New(config.RateLimit{Enabled: false, ScriptGenerationPerHour: 1})
	for i := 0; i < 5; i++ {
		if ok, _ := disabled.Allow("k", ClassScriptGeneration); !ok {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	var nilLimiter *Limiter
	if ok, _ := nilLimiter.Allow("k", ClassAPICall); !ok {
		t.Fatal("nil limiter rejected a request")
	}
}

func TestSweepRemovesIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(10, 100)
	l.Allow("old", ClassAPICall)
	clock.t = clock.t.Add(2 * time.Hour)
	l.Allow("fresh", ClassAPICall)

	if removed := l.Sweep(time.Hour); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]int{
		0:                       1,
		500 * time.Millisecond:  1,
		1500 * time.Millisecond: 2,
		6 * time.Minute:         360,
	}
	for d, want := range cases {
		if got := RetryAfterSeconds(d); got != want {
			t.Fatalf("RetryAfterSeconds(%v) = %d, want %d", d, got, want)
		}
	}
}
