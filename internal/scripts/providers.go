package scripts

import (
	"studio/internal/config"
	"studio/internal/services/llm"
)

// ProvidersFromConfig builds the enabled providers in generation.providers
// order. Providers without an API key are skipped.
func ProvidersFromConfig(cfg *config.Config, opts ...llm.Option) []llm.Provider {
	out := make([]llm.Provider, 0, len(cfg.Generation.Providers))
	for _, name := range cfg.Generation.Providers {
		settings, ok := cfg.ProviderSettings(name)
		if !ok || !settings.Enabled || settings.APIKey == "" {
			continue
		}
		llmCfg := llm.Config{
			APIKey:         settings.APIKey,
			BaseURL:        settings.BaseURL,
			Model:          settings.Model,
			TimeoutSeconds: settings.TimeoutSeconds,
		}
		switch name {
		case config.ProviderOpenAI:
			out = append(out, llm.NewClient(llmCfg, opts...))
		case config.ProviderAnthropic:
			out = append(out, llm.NewAnthropicClient(llmCfg, opts...))
		}
	}
	return out
}
