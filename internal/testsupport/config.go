package testsupport

import (
	"path/filepath"
	"testing"

	"studio/internal/config"
)

// TestJWTSecret is the signing secret applied to generated test configs.
const TestJWTSecret = "test-secret-0123456789abcdef"

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Providers are disabled so generation falls back to templates unless a test
// opts back in with WithProvider.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Server.Environment = "test"
	cfgVal.Auth.JWTSecret = TestJWTSecret
	cfgVal.Auth.BcryptCost = 4
	cfgVal.OpenAI.Enabled = false
	cfgVal.Anthropic.Enabled = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStorageDriver selects the persistence backend.
func WithStorageDriver(driver string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Driver = driver
	}
}

// WithProvider enables the named provider against baseURL with a test key.
func WithProvider(name, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		var p *config.Provider
		switch name {
		case config.ProviderOpenAI:
			p = &b.cfg.OpenAI
		case config.ProviderAnthropic:
			p = &b.cfg.Anthropic
		default:
			b.t.Fatalf("unknown provider %q", name)
			return
		}
		p.Enabled = true
		p.APIKey = "test-key"
		p.BaseURL = baseURL
	}
}

// WithRequireAuth toggles mandatory authentication.
func WithRequireAuth(required bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Auth.RequireAuth = required
	}
}

// WithRateLimits overrides the hourly budgets.
func WithRateLimits(scriptsPerHour, apiCallsPerHour int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.Enabled = true
		b.cfg.RateLimit.ScriptGenerationPerHour = scriptsPerHour
		b.cfg.RateLimit.APICallsPerHour = apiCallsPerHour
	}
}

// WithoutRateLimit disables rate limiting.
func WithoutRateLimit() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.Enabled = false
	}
}

// WithCORSOrigins replaces the allowed CORS origins.
func WithCORSOrigins(origins ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.CORSOrigins = origins
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
