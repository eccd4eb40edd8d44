package scripts

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"studio/internal/auth"
	"studio/internal/config"
	"studio/internal/metrics"
	"studio/internal/services"
	"studio/internal/services/llm"
	"studio/internal/store"
	"studio/internal/testsupport"
	"studio/internal/users"
)

type fakeProvider struct {
	name    string
	content string
	tokens  int
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompletionOptions) (llm.Completion, error) {
	f.calls++
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return llm.Completion{Provider: f.name, Model: f.name + "-model", Content: f.content, CompletionTokens: f.tokens}, nil
}

// slowProvider answers after delay and is safe for concurrent use.
type slowProvider struct {
	name  string
	delay time.Duration
	calls atomic.Int32
}

func (p *slowProvider) Name() string { return p.name }

func (p *slowProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompletionOptions) (llm.Completion, error) {
	p.calls.Add(1)
	select {
	case <-time.After(p.delay):
		return llm.Completion{Provider: p.name, Content: longContent}, nil
	case <-ctx.Done():
		return llm.Completion{}, ctx.Err()
	}
}

// stuckProvider ignores its context and answers only when unblocked.
type stuckProvider struct {
	name    string
	unblock chan struct{}
}

func (p *stuckProvider) Name() string { return p.name }

func (p *stuckProvider) Complete(ctx context.Context, systemPrompt, userPrompt string, opts llm.CompletionOptions) (llm.Completion, error) {
	<-p.unblock
	return llm.Completion{Provider: p.name, Content: longContent}, nil
}

const longContent = "Hook: Stop scrolling right now. Here is the single habit that changes everything about your mornings. Try it tomorrow and tell me how it went."

type harness struct {
	gen     *Generator
	store   store.Store
	users   *users.Service
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, providers ...llm.Provider) *harness {
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
	m := metrics.New()
	gen, err := NewGenerator(Options{
		Store:      st,
		Users:      userSvc,
		Providers:  providers,
		Generation: cfg.Generation,
		Pricing:    cfg.Pricing,
		Metrics:    m,
	})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return &harness{gen: gen, store: st, users: userSvc, metrics: m}
}

func (h *harness) registerUser(t *testing.T) string {
	t.Helper()
	session, err := h.users.Register(context.Background(), users.RegisterRequest{Email: "writer@example.com", Password: "password123", Name: "Writer"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return session.UserID
}

func TestGenerateValidation(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name string
		req  Request
		want string
	}{
		{"short topic", Request{Topic: "  ab "}, "topic must be at least 3 characters long"},
		{"long topic", Request{Topic: strings.Repeat("x", 201)}, "topic must be at most 200 characters long"},
		{"too short", Request{Topic: "coffee", Duration: 5}, "duration must be between 10 and 300 seconds"},
		{"too long", Request{Topic: "coffee", Duration: 301}, "duration must be between 10 and 300 seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.gen.Generate(context.Background(), tc.req)
			if !errors.Is(err, services.ErrValidation) || services.Details(err) != tc.want {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestGenerateFallsBackToTemplate(t *testing.T) {
	h := newHarness(t)
	script, err := h.gen.Generate(context.Background(), Request{Topic: "morning routines", Style: "unknown"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Provider != config.ProviderTemplate || script.Style != StyleProfessional || script.Duration != 30 {
		t.Fatalf("unexpected script %+v", script)
	}
	if !strings.HasPrefix(script.Content, "# Morning Routines\n") {
		t.Fatalf("expected title-cased heading, got %q", script.Content[:40])
	}
	if script.UserID != users.DemoUserID {
		t.Fatalf("expected demo user, got %q", script.UserID)
	}
	if script.WordCount != countWords(script.Content) || script.EstimatedDuration != estimateDuration(script.WordCount) {
		t.Fatalf("inconsistent metrics %+v", script)
	}
	if script.Tokens != estimateTokens(script.WordCount) || script.Cost != computeCost(script.Tokens, 0.001) {
		t.Fatalf("unexpected token accounting %+v", script)
	}

	stored, err := h.gen.Get(context.Background(), script.ID)
	if err != nil || stored.Content != script.Content {
		t.Fatalf("script not persisted: %v", err)
	}
	n, _ := h.store.CountEvents(context.Background(), store.EventFilter{Types: []store.EventType{store.EventScriptGeneration}})
	if n != 1 {
		t.Fatalf("expected one generation event, got %d", n)
	}
}

func TestGenerateUsesProviderChain(t *testing.T) {
	failing := &fakeProvider{name: "openai", err: errors.New("boom")}
	short := &fakeProvider{name: "anthropic", content: "too short"}
	h := newHarness(t, failing, short)

	script, err := h.gen.Generate(context.Background(), Request{Topic: "habits"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Provider != config.ProviderTemplate {
		t.Fatalf("expected template after two failures, got %q", script.Provider)
	}
	if n, err := testutil.GatherAndCount(h.metrics.Registry(), "studio_provider_failures_total"); err != nil || n != 2 {
		t.Fatalf("expected failures recorded for both providers, got %d (%v)", n, err)
	}

	good := &fakeProvider{name: "anthropic", content: longContent, tokens: 200}
	h = newHarness(t, &fakeProvider{name: "openai", err: errors.New("boom")}, good)
	script, err = h.gen.Generate(context.Background(), Request{Topic: "habits", Style: "casual"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Provider != "anthropic" || script.Model != "anthropic-model" || script.Tokens != 200 {
		t.Fatalf("unexpected provider result %+v", script)
	}
	if script.Cost != 0.003 {
		t.Fatalf("expected 200 tokens at 0.015/1k = 0.003, got %v", script.Cost)
	}
}

func TestGenerateHonoursPreferredProvider(t *testing.T) {
	first := &fakeProvider{name: "openai", content: longContent}
	second := &fakeProvider{name: "anthropic", content: longContent}
	h := newHarness(t, first, second)
	userID := h.registerUser(t)
	if err := h.users.SetPreferredProvider(context.Background(), userID, "anthropic"); err != nil {
		t.Fatalf("SetPreferredProvider: %v", err)
	}

	script, err := h.gen.Generate(context.Background(), Request{Topic: "habits", UserID: userID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Provider != "anthropic" || first.calls != 0 {
		t.Fatalf("expected anthropic first, got %q (openai calls %d)", script.Provider, first.calls)
	}

	profile, _ := h.users.Profile(context.Background(), userID)
	if profile.UsageStats.ScriptsGenerated != 1 {
		t.Fatalf("expected usage bump, got %+v", profile.UsageStats)
	}
}

func TestGenerateEnforcesMonthlyQuota(t *testing.T) {
	h := newHarness(t)
	userID := h.registerUser(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := h.gen.Generate(ctx, Request{Topic: "quota topic", UserID: userID}); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	_, err := h.gen.Generate(ctx, Request{Topic: "quota topic", UserID: userID})
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	for i := 0; i < 6; i++ {
		if _, err := h.gen.Generate(ctx, Request{Topic: "demo topic"}); err != nil {
			t.Fatalf("demo user should not be limited: %v", err)
		}
	}
}

func TestGenerateConcurrentRequestsStayWithinQuota(t *testing.T) {
	provider := &slowProvider{name: "openai", delay: 50 * time.Millisecond}
	h := newHarness(t, provider)
	userID := h.registerUser(t)
	ctx := context.Background()
	limit := users.PlanOrDefault(users.PlanFree).Limits.ScriptsPerMonth

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < limit*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gen.Generate(ctx, Request{Topic: "parallel topic", UserID: userID})
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, services.ErrQuotaExceeded):
				rejected.Add(1)
			default:
				t.Errorf("Generate: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := h.store.CountScripts(ctx, store.ScriptFilter{UserID: userID})
	if err != nil {
		t.Fatalf("CountScripts: %v", err)
	}
	if int(admitted.Load()) != limit || int(rejected.Load()) != limit || stored != limit {
		t.Fatalf("admitted=%d rejected=%d stored=%d, want %d each", admitted.Load(), rejected.Load(), stored, limit)
	}
}

func TestGenerateFallsBackWhenBudgetExpires(t *testing.T) {
	stuck := &stuckProvider{name: "openai", unblock: make(chan struct{})}
	t.Cleanup(func() { close(stuck.unblock) })
	slow := &slowProvider{name: "anthropic", delay: time.Minute}
	h := newHarness(t, stuck, slow)
	h.gen.timeout = 50 * time.Millisecond

	start := time.Now()
	script, err := h.gen.Generate(context.Background(), Request{Topic: "deadlines"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("generation took %s despite a 50ms budget", elapsed)
	}
	if script.Provider != config.ProviderTemplate {
		t.Fatalf("expected template after the budget ran out, got %q", script.Provider)
	}
	if slow.calls.Load() != 0 {
		t.Fatalf("no provider should start after the budget is spent, got %d calls", slow.calls.Load())
	}
}

func TestGenerateTimeoutComesFromConfig(t *testing.T) {
	h := newHarness(t)
	if h.gen.timeout != 45*time.Second {
		t.Fatalf("expected the default 45s generation budget, got %s", h.gen.timeout)
	}
}

func TestScriptIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	script, err := h.gen.Generate(ctx, Request{Topic: "identifiers"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{12}$`).MatchString(script.ID) {
		t.Fatalf("script id %q is not 12 hex characters", script.ID)
	}

	ids := []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	h.gen.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first, err := h.gen.Generate(ctx, Request{Topic: "identifiers"})
	if err != nil || first.ID != "aaaaaaaaaaaa" {
		t.Fatalf("first Generate: %+v %v", first, err)
	}
	second, err := h.gen.Generate(ctx, Request{Topic: "identifiers"})
	if err != nil {
		t.Fatalf("colliding id should be redrawn: %v", err)
	}
	if second.ID != "bbbbbbbbbbbb" {
		t.Fatalf("expected redrawn id, got %q", second.ID)
	}
}

func TestGenerateUsesDefaultStyle(t *testing.T) {
	h := newHarness(t)
	userID := h.registerUser(t)
	ctx := context.Background()
	profile, _ := h.users.Profile(ctx, userID)
	prefs := profile.Preferences
	prefs.DefaultScriptStyle = StyleEducational
	if _, err := h.users.UpdateProfile(ctx, userID, users.ProfileUpdate{Preferences: &prefs}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	script, err := h.gen.Generate(ctx, Request{Topic: "fractions", UserID: userID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if script.Style != StyleEducational || !strings.Contains(script.Content, "Let me break it down") {
		t.Fatalf("expected educational style, got %q", script.Style)
	}
}

func TestGetAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.gen.Get(ctx, "missing"); !errors.Is(err, services.ErrNotFound) || services.Details(err) != "Script not found" {
		t.Fatalf("expected not found, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.gen.Generate(ctx, Request{Topic: "listing"}); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	}
	list, err := h.gen.List(ctx, users.DemoUserID, 2)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 scripts, got %d (%v)", len(list), err)
	}
	list, _ = h.gen.List(ctx, users.DemoUserID, 0)
	if len(list) != 3 {
		t.Fatalf("expected default limit to include all 3, got %d", len(list))
	}
}

func TestProvidersFromConfigSkipsKeyless(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Anthropic.APIKey = ""
	providers := ProvidersFromConfig(&cfg)
	if len(providers) != 1 || providers[0].Name() != llm.OpenAIName {
		t.Fatalf("unexpected providers %v", providers)
	}
}
