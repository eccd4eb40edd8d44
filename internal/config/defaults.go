package config

// Provider names accepted in generation.providers and user preferences.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	// ProviderTemplate is the built-in fallback and never appears in
	// generation.providers.
	ProviderTemplate = "template"
)

const (
	defaultConfigPath            = "~/.config/studio/config.toml"
	defaultBind                  = "0.0.0.0:8000"
	defaultEnvironment           = "production"
	defaultReadTimeout           = 15
	defaultWriteTimeout          = 60
	defaultShutdownTimeout       = 10
	defaultDataDir               = "~/.local/share/studio"
	defaultLogDir                = "~/.local/share/studio/logs"
	defaultStorageDriver         = "memory"
	defaultSnapshotInterval      = 30
	defaultMaxEvents             = 50000
	defaultTokenTTLHours         = 24
	defaultIssuer                = "ai-content-studio"
	defaultBcryptCost            = 10
	defaultOpenAIBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel           = "gpt-4"
	defaultAnthropicBaseURL      = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel        = "claude-3-sonnet-20240229"
	defaultProviderTimeout       = 60
	defaultMinContentChars       = 50
	defaultMaxTokens             = 1000
	defaultTemperature           = 0.7
	defaultGenerationTimeout     = 45
	defaultScriptsPerHour        = 10
	defaultAPICallsPerHour       = 100
	defaultCacheTTLSeconds       = 30
	defaultCacheMaxCostBytes     = 16 << 20
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultPricingOpenAI         = 0.03
	defaultPricingAnthropic      = 0.015
	defaultPricingTemplate       = 0.001
	minBcryptCost, maxBcryptCost = 4, 31
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind:            defaultBind,
			Environment:     defaultEnvironment,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			Driver:           defaultStorageDriver,
			SnapshotInterval: defaultSnapshotInterval,
			MaxEvents:        defaultMaxEvents,
		},
		Auth: Auth{
			TokenTTLHours: defaultTokenTTLHours,
			Issuer:        defaultIssuer,
			BcryptCost:    defaultBcryptCost,
		},
		OpenAI: Provider{
			Enabled:        true,
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultOpenAIModel,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Anthropic: Provider{
			Enabled:        true,
			BaseURL:        defaultAnthropicBaseURL,
			Model:          defaultAnthropicModel,
			TimeoutSeconds: defaultProviderTimeout,
		},
		Generation: Generation{
			Providers:       []string{ProviderOpenAI, ProviderAnthropic},
			MinContentChars: defaultMinContentChars,
			MaxTokens:       defaultMaxTokens,
			Temperature:     defaultTemperature,
			TimeoutSeconds:  defaultGenerationTimeout,
		},
		Pricing: Pricing{
			OpenAI:    defaultPricingOpenAI,
			Anthropic: defaultPricingAnthropic,
			Template:  defaultPricingTemplate,
		},
		RateLimit: RateLimit{
			Enabled:                 true,
			ScriptGenerationPerHour: defaultScriptsPerHour,
			APICallsPerHour:         defaultAPICallsPerHour,
		},
		Cache: Cache{
			Enabled:      true,
			TTLSeconds:   defaultCacheTTLSeconds,
			MaxCostBytes: defaultCacheMaxCostBytes,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
