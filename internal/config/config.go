package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains HTTP listener configuration.
type Server struct {
	Bind            string   `toml:"bind"`
	Environment     string   `toml:"environment"`
	CORSOrigins     []string `toml:"cors_origins"`
	ReadTimeout     int      `toml:"read_timeout"`
	WriteTimeout    int      `toml:"write_timeout"`
	ShutdownTimeout int      `toml:"shutdown_timeout"`
}

// Paths contains data and log directories.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage selects the persistence backend.
type Storage struct {
	Driver           string `toml:"driver"`
	SnapshotInterval int    `toml:"snapshot_interval"`
	MaxEvents        int    `toml:"max_events"`
}

// Auth contains token issuing and password hashing settings.
type Auth struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
	Issuer        string `toml:"issuer"`
	RequireAuth   bool   `toml:"require_auth"`
	BcryptCost    int    `toml:"bcrypt_cost"`

	secretGenerated bool
}

// Provider contains connection settings for one LLM vendor.
type Provider struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Generation controls how scripts are produced.
type Generation struct {
	Providers       []string `toml:"providers"`
	MinContentChars int      `toml:"min_content_chars"`
	MaxTokens       int      `toml:"max_tokens"`
	Temperature     float64  `toml:"temperature"`
	// TimeoutSeconds bounds the provider chain for one request and must be
	// below server.write_timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Pricing holds the USD cost per thousand tokens for each provider.
type Pricing struct {
	OpenAI    float64 `toml:"openai"`
	Anthropic float64 `toml:"anthropic"`
	Template  float64 `toml:"template"`
}

// RateLimit contains per-user request budgets.
type RateLimit struct {
	Enabled                 bool `toml:"enabled"`
	ScriptGenerationPerHour int  `toml:"script_generation_per_hour"`
	APICallsPerHour         int  `toml:"api_calls_per_hour"`
}

// Cache contains response cache settings.
type Cache struct {
	Enabled      bool  `toml:"enabled"`
	TTLSeconds   int   `toml:"ttl_seconds"`
	MaxCostBytes int64 `toml:"max_cost_bytes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the studio service.
//
// Configuration sections by subsystem:
//   - Server: listener address, environment label, CORS and timeouts
//   - Paths: data and log directories
//   - Storage: memory snapshot or SQLite backend
//   - Auth: JWT issuing and bcrypt cost
//   - OpenAI, Anthropic: LLM provider connections
//   - Generation: provider order and completion parameters
//   - Pricing: per-provider token costs used for cost tracking
//   - RateLimit: per-user hourly budgets
//   - Cache: read response cache
//   - Logging: log format and level
type Config struct {
	Server     Server     `toml:"server"`
	Paths      Paths      `toml:"paths"`
	Storage    Storage    `toml:"storage"`
	Auth       Auth       `toml:"auth"`
	OpenAI     Provider   `toml:"openai"`
	Anthropic  Provider   `toml:"anthropic"`
	Generation Generation `toml:"generation"`
	Pricing    Pricing    `toml:"pricing"`
	RateLimit  RateLimit  `toml:"rate_limit"`
	Cache      Cache      `toml:"cache"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("studio.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SnapshotPath is the JSON snapshot used by the memory backend.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Paths.DataDir, "studio.json")
}

// DatabasePath is the SQLite database used by the sqlite backend.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "studio.db")
}

// LockPath is the single-instance lock held by the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "studiod.lock")
}

// JWTSecretGenerated reports whether the signing secret was generated for this
// process because none was configured.
func (c *Config) JWTSecretGenerated() bool {
	return c.Auth.secretGenerated
}

// ProviderSettings returns the connection settings for a named provider.
func (c *Config) ProviderSettings(name string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderOpenAI:
		return c.OpenAI, true
	case ProviderAnthropic:
		return c.Anthropic, true
	default:
		return Provider{}, false
	}
}

// CostPer1KTokens returns the configured price for a provider, falling back to
// the template rate for unknown names.
func (p Pricing) CostPer1KTokens(provider string) float64 {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return p.OpenAI
	case ProviderAnthropic:
		return p.Anthropic
	default:
		return p.Template
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML. Secrets are masked.
func (c *Config) Encode() ([]byte, error) {
	masked := *c
	masked.Auth.JWTSecret = maskSecret(masked.Auth.JWTSecret)
	masked.OpenAI.APIKey = maskSecret(masked.OpenAI.APIKey)
	masked.Anthropic.APIKey = maskSecret(masked.Anthropic.APIKey)
	data, err := toml.Marshal(masked)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
