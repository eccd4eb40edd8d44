package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validatePricing(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("server.bind must be host:port: %w", err)
	}
	if c.Server.ReadTimeout <= 0 {
		return errors.New("server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be one of memory, sqlite (got %q)", c.Storage.Driver)
	}
	if c.Storage.SnapshotInterval <= 0 {
		return errors.New("storage.snapshot_interval must be positive")
	}
	if c.Storage.MaxEvents <= 0 {
		return errors.New("storage.max_events must be positive")
	}
	return nil
}

func (c *Config) validateAuth() error {
	if c.Auth.TokenTTLHours <= 0 {
		return errors.New("auth.token_ttl_hours must be positive")
	}
	if c.Auth.BcryptCost < minBcryptCost || c.Auth.BcryptCost > maxBcryptCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", minBcryptCost, maxBcryptCost)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	seen := make(map[string]struct{}, len(c.Generation.Providers))
	for _, name := range c.Generation.Providers {
		if _, ok := c.ProviderSettings(name); !ok {
			return fmt.Errorf("generation.providers: unknown provider %q", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("generation.providers: duplicate provider %q", name)
		}
		seen[name] = struct{}{}
	}
	if c.Generation.MinContentChars < 0 {
		return errors.New("generation.min_content_chars must be non-negative")
	}
	if c.Generation.MaxTokens <= 0 {
		return errors.New("generation.max_tokens must be positive")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return errors.New("generation.temperature must be between 0 and 2")
	}
	if c.Generation.TimeoutSeconds <= 0 {
		return errors.New("generation.timeout_seconds must be positive")
	}
	if c.Generation.TimeoutSeconds >= c.Server.WriteTimeout {
		return fmt.Errorf("generation.timeout_seconds (%d) must be less than server.write_timeout (%d)",
			c.Generation.TimeoutSeconds, c.Server.WriteTimeout)
	}
	for _, p := range []struct {
		name string
		cfg  Provider
	}{{"openai", c.OpenAI}, {"anthropic", c.Anthropic}} {
		if !p.cfg.Enabled {
			continue
		}
		if !strings.HasPrefix(p.cfg.BaseURL, "http://") && !strings.HasPrefix(p.cfg.BaseURL, "https://") {
			return fmt.Errorf("%s.base_url must be an http(s) URL", p.name)
		}
	}
	return nil
}

func (c *Config) validatePricing() error {
	if c.Pricing.OpenAI < 0 || c.Pricing.Anthropic < 0 || c.Pricing.Template < 0 {
		return errors.New("pricing values must be non-negative")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if !c.RateLimit.Enabled {
		return nil
	}
	if c.RateLimit.ScriptGenerationPerHour <= 0 {
		return errors.New("rate_limit.script_generation_per_hour must be positive")
	}
	if c.RateLimit.APICallsPerHour <= 0 {
		return errors.New("rate_limit.api_calls_per_hour must be positive")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.Enabled {
		return nil
	}
	if c.Cache.TTLSeconds <= 0 {
		return errors.New("cache.ttl_seconds must be positive")
	}
	if c.Cache.MaxCostBytes <= 0 {
		return errors.New("cache.max_cost_bytes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	return nil
}
