package scripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio/internal/config"
	"studio/internal/logging"
	"studio/internal/metrics"
	"studio/internal/services"
	"studio/internal/services/llm"
	"studio/internal/store"
	"studio/internal/users"
)

const (
	defaultDuration = 30
	minDuration     = 10
	maxDuration     = 300
	minTopicChars   = 3
	maxTopicChars   = 200
	scriptIDLength  = 12
	idAttempts      = 3
	defaultLimit    = 10
	maxLimit        = 100
)

// Request describes one generation call.
type Request struct {
	Topic    string `json:"topic"`
	Duration int    `json:"duration"`
	Style    string `json:"style"`
	UserID   string `json:"-"`
}

// Options wires a Generator.
type Options struct {
	Store      store.Store
	Users      *users.Service
	Providers  []llm.Provider
	Generation config.Generation
	Pricing    config.Pricing
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Generator produces scripts through the provider chain with a template fallback.
type Generator struct {
	store     store.Store
	users     *users.Service
	providers []llm.Provider
	gen       config.Generation
	pricing   config.Pricing
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewGenerator validates options and returns a Generator.
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Store == nil {
		return nil, errors.New("store required")
	}
	if opts.Users == nil {
		return nil, errors.New("users service required")
	}
	return &Generator{
		store:     opts.Store,
		users:     opts.Users,
		providers: append([]llm.Provider(nil), opts.Providers...),
		gen:       opts.Generation,
		pricing:   opts.Pricing,
		metrics:   opts.Metrics,
		logger:    logging.NewComponentLogger(opts.Logger, "scripts"),
		timeout:   time.Duration(opts.Generation.TimeoutSeconds) * time.Second,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newScriptID,
	}, nil
}

// newScriptID returns 12 lowercase hex characters taken from a random UUID.
func newScriptID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:scriptIDLength]
}

// ProviderNames lists the configured providers in attempt order.
func (g *Generator) ProviderNames() []string {
	names := make([]string, 0, len(g.providers))
	for _, p := range g.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate validates req, enforces the monthly quota, produces content and
// persists the resulting script.
func (g *Generator) Generate(ctx context.Context, req Request) (*store.Script, error) {
	topic := strings.TrimSpace(req.Topic)
	switch n := len([]rune(topic)); {
	case n < minTopicChars:
		return nil, services.Wrap(services.ErrValidation, "generate script", "topic must be at least 3 characters long", nil)
	case n > maxTopicChars:
		return nil, services.Wrap(services.ErrValidation, "generate script", "topic must be at most 200 characters long", nil)
	}
	duration := req.Duration
	if duration == 0 {
		duration = defaultDuration
	}
	if duration < minDuration || duration > maxDuration {
		return nil, services.Wrap(services.ErrValidation, "generate script", "duration must be between 10 and 300 seconds", nil)
	}
	userID := req.UserID
	if userID == "" {
		userID = users.DemoUserID
	}

	user, err := g.users.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	styleName := strings.ToLower(strings.TrimSpace(req.Style))
	if styleName == "" && user != nil {
		styleName = user.Preferences.DefaultScriptStyle
	}
	style := LookupStyle(styleName)

	release, err := g.users.ReserveScript(ctx, user)
	if err != nil {
		return nil, err
	}
	defer release()

	logger := logging.WithContext(ctx, g.logger)
	completion := g.complete(ctx, logger, topic, duration, style, preferredProvider(user))

	words := countWords(completion.Content)
	tokens := completion.TotalTokens()
	if tokens <= 0 {
		tokens = estimateTokens(words)
	}
	script := &store.Script{
		ID:                g.newID(),
		UserID:            userID,
		Topic:             topic,
		Content:           completion.Content,
		Style:             style.Name,
		Duration:          duration,
		WordCount:         words,
		EstimatedDuration: estimateDuration(words),
		Provider:          completion.Provider,
		Model:             completion.Model,
		Tokens:            tokens,
		Cost:              computeCost(tokens, g.pricing.CostPer1KTokens(completion.Provider)),
		QualityScore:      qualityScore(completion.Content),
		CreatedAt:         g.now(),
	}
	if err := g.save(ctx, script); err != nil {
		return nil, err
	}

	g.recordSideEffects(ctx, logger, script)
	logger.Info("script generated",
		logging.String(logging.FieldEventType, "script_generated"),
		logging.String("script_id", script.ID),
		logging.String("provider", script.Provider),
		logging.String("style", script.Style),
		logging.Int("word_count", script.WordCount),
		logging.Float64("cost", script.Cost),
	)
	return script, nil
}

func preferredProvider(user *store.User) string {
	if user == nil {
		return ""
	}
	return user.Preferences.PreferredProvider
}

// save stores script, drawing a fresh ID when the short one collides.
func (g *Generator) save(ctx context.Context, script *store.Script) error {
	for attempt := 1; ; attempt++ {
		err := g.store.CreateScript(ctx, script)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateScript) || attempt >= idAttempts {
			return fmt.Errorf("save script: %w", err)
		}
		script.ID = g.newID()
	}
}

// orderedProviders moves the preferred provider to the front.
func (g *Generator) orderedProviders(preferred string) []llm.Provider {
	if preferred == "" {
		return g.providers
	}
	out := make([]llm.Provider, 0, len(g.providers))
	for _, p := range g.providers {
		if p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range g.providers {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

func (g *Generator) complete(ctx context.Context, logger *slog.Logger, topic string, duration int, style Style, preferred string) llm.Completion {
	if preferred != config.ProviderTemplate && len(g.providers) > 0 {
		if completion, ok := g.completeWithProviders(ctx, logger, topic, duration, style, preferred); ok {
			return completion
		}
	}
	return llm.Completion{
		Provider: config.ProviderTemplate,
		Content:  renderTemplate(topic, duration, style),
	}
}

// completeWithProviders walks the provider chain inside the generation
// budget. It reports false when every provider failed or the budget ran out.
func (g *Generator) completeWithProviders(ctx context.Context, logger *slog.Logger, topic string, duration int, style Style, preferred string) (llm.Completion, bool) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	prompt := buildPrompt(topic, duration, style)
	opts := llm.CompletionOptions{MaxTokens: g.gen.MaxTokens, Temperature: g.gen.Temperature}
	for _, provider := range g.orderedProviders(preferred) {
		completion, err := callProvider(ctx, provider, prompt, opts)
		if err == nil {
			completion.Content = strings.TrimSpace(llm.StripCodeFence(completion.Content))
			if len([]rune(completion.Content)) >= g.gen.MinContentChars {
				if completion.Provider == "" {
					completion.Provider = provider.Name()
				}
				return completion, true
			}
			err = fmt.Errorf("content shorter than %d characters", g.gen.MinContentChars)
		}
		g.metrics.ProviderFailed(provider.Name())
		if ctx.Err() != nil {
			logging.WarnWithContext(logger, "generation budget exhausted; using template", "generation_timeout",
				logging.String("provider", provider.Name()),
				logging.Duration("budget", g.timeout),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check provider latency or raise generation.timeout_seconds"),
				logging.String(logging.FieldImpact, "script rendered from the template"),
			)
			return llm.Completion{}, false
		}
		logging.WarnWithContext(logger, "provider failed; trying next", "provider_failed",
			logging.String("provider", provider.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check provider API key and quota"),
			logging.String(logging.FieldImpact, "falling back to next provider or template"),
		)
	}
	return llm.Completion{}, false
}

// callProvider returns when the provider answers or ctx is done, whichever
// comes first.
func callProvider(ctx context.Context, provider llm.Provider, prompt string, opts llm.CompletionOptions) (llm.Completion, error) {
	type result struct {
		completion llm.Completion
		err        error
	}
	done := make(chan result, 1)
	go func() {
		completion, err := provider.Complete(ctx, systemPrompt, prompt, opts)
		done <- result{completion, err}
	}()
	select {
	case r := <-done:
		return r.completion, r.err
	case <-ctx.Done():
		return llm.Completion{}, ctx.Err()
	}
}

func (g *Generator) recordSideEffects(ctx context.Context, logger *slog.Logger, script *store.Script) {
	event := store.Event{
		Type:      store.EventScriptGeneration,
		UserID:    script.UserID,
		Timestamp: script.CreatedAt,
		Metadata: map[string]string{
			"script_id": script.ID,
			"style":     script.Style,
			"provider":  script.Provider,
			"cost":      strconv.FormatFloat(script.Cost, 'f', 4, 64),
		},
	}
	if err := g.store.AppendEvent(ctx, event); err != nil {
		logging.WarnWithContext(logger, "script event not recorded", "event_append_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage health"),
			logging.String(logging.FieldImpact, "analytics undercount"),
		)
	}
	if err := g.users.RecordUsage(ctx, script.UserID, users.UsageDelta{Scripts: 1, Cost: script.Cost}); err != nil {
		logging.WarnWithContext(logger, "usage stats not updated", "usage_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage health"),
		)
	}
	g.metrics.ScriptGenerated(script.Provider, script.Style, script.Cost)
}

// Get returns a script by ID.
func (g *Generator) Get(ctx context.Context, id string) (*store.Script, error) {
	script, err := g.store.GetScript(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	if script == nil {
		return nil, services.Wrap(services.ErrNotFound, "get script", "Script not found", nil)
	}
	return script, nil
}

// List returns the user's newest scripts. Limit is clamped to 1..100 and
// defaults to 10.
func (g *Generator) List(ctx context.Context, userID string, limit int) ([]*store.Script, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	list, err := g.store.ListScripts(ctx, store.ScriptFilter{UserID: userID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return list, nil
}
