// Package config provides unified configuration for the byok server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML or TOML config file (discovered or explicitly specified)
//  3. Environment variable overrides (BYOK_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the byok server.
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Providers     ProvidersConfig     `yaml:"providers" toml:"providers"`
	Engine        EngineConfig        `yaml:"engine" toml:"engine"`
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	Credentials   CredentialsConfig   `yaml:"credentials" toml:"credentials"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Observability ObservabilityConfig `yaml:"observability" toml:"observability"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`                         // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`         // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`       // default: 0, streams are long-lived
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"` // default: 15s
	MaxBodyBytes    int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`     // default: 2 MiB
}

// ProvidersConfig holds per-vendor endpoint settings. Keys are never
// configured here; every caller brings their own.
type ProvidersConfig struct {
	Anthropic AnthropicConfig `yaml:"anthropic" toml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" toml:"openai"`
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	Version      string        `yaml:"version" toml:"version"`
	DefaultModel string        `yaml:"default_model" toml:"default_model"`
	MaxTokens    int           `yaml:"max_tokens" toml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
}

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	BaseURL      string        `yaml:"base_url" toml:"base_url"`
	Organization string        `yaml:"organization" toml:"organization"`
	DefaultModel string        `yaml:"default_model" toml:"default_model"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
}

// EngineConfig holds completion orchestration settings.
type EngineConfig struct {
	FinalizeTimeout  time.Duration `yaml:"finalize_timeout" toml:"finalize_timeout"`     // default: 5s
	MaxPromptSize    int           `yaml:"max_prompt_size" toml:"max_prompt_size"`       // default: 1 MiB
	MaxStopSequences int           `yaml:"max_stop_sequences" toml:"max_stop_sequences"` // default: 4
}

// StorageConfig holds thread and credential persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type" toml:"type"`         // "memory", "postgres" or "sqlite", default: "memory"
	MaxSize  int            `yaml:"max_size" toml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite" toml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" toml:"dsn"`
	DSNFile         string        `yaml:"dsn_file" toml:"dsn_file"` // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns" toml:"max_conns"`
	MinConns        int32         `yaml:"min_conns" toml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" toml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start" toml:"migrate_on_start"`
}

// SQLiteConfig holds embedded database settings.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"` // default: "byok.db"
}

// CredentialsConfig holds the key material protecting stored API keys.
type CredentialsConfig struct {
	MasterKey     string `yaml:"master_key" toml:"master_key"`
	MasterKeyFile string `yaml:"master_key_file" toml:"master_key_file"` // _file variant for master_key
	Salt          string `yaml:"salt" toml:"salt"`
	// ValidateOnSet checks a new key against the vendor before storing it.
	ValidateOnSet bool `yaml:"validate_on_set" toml:"validate_on_set"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type" toml:"type"`         // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys" toml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt" toml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" toml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" toml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" toml:"subject" json:"subject"`
	ServiceTier string `yaml:"service_tier" toml:"service_tier" json:"service_tier"`
}

// JWTConfig configures bearer token validation. Either a JWKS URL (RSA
// keys) or a shared secret (HMAC) must be set.
type JWTConfig struct {
	Issuer     string        `yaml:"issuer" toml:"issuer"`
	Audience   string        `yaml:"audience" toml:"audience"`
	JWKSURL    string        `yaml:"jwks_url" toml:"jwks_url"`
	Secret     string        `yaml:"secret" toml:"secret"`
	SecretFile string        `yaml:"secret_file" toml:"secret_file"` // _file variant for secret
	UserClaim  string        `yaml:"user_claim" toml:"user_claim"`   // default: "sub"
	TierClaim  string        `yaml:"tier_claim" toml:"tier_claim"`
	CacheTTL   time.Duration `yaml:"cache_ttl" toml:"cache_ttl"`
}

// RateLimitConfig holds per-subject request limits keyed by service tier.
type RateLimitConfig struct {
	Enabled bool                 `yaml:"enabled" toml:"enabled"`
	Default TierLimit            `yaml:"default" toml:"default"`
	Tiers   map[string]TierLimit `yaml:"tiers" toml:"tiers"`
}

// TierLimit is the token bucket for one service tier.
type TierLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute" toml:"requests_per_minute"`
	Burst             int `yaml:"burst" toml:"burst"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"` // default: true
	Path    string `yaml:"path" toml:"path"`       // default: "/metrics"
}

// LoggingConfig holds slog settings. BYOK_LOG_LEVEL, BYOK_LOG_FORMAT and
// BYOK_DEBUG still win over these at startup.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // default: "INFO"
	Format string `yaml:"format" toml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug" toml:"debug"`   // comma separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    2 << 20,
		},
		Providers: ProvidersConfig{
			Anthropic: AnthropicConfig{
				BaseURL:      "https://api.anthropic.com",
				Version:      "2023-06-01",
				DefaultModel: "claude-3-7-sonnet-20250219",
				MaxTokens:    4096,
				Timeout:      120 * time.Second,
			},
			OpenAI: OpenAIConfig{
				BaseURL:      "https://api.openai.com",
				DefaultModel: "gpt-4o",
				Timeout:      120 * time.Second,
			},
		},
		Engine: EngineConfig{
			FinalizeTimeout:  5 * time.Second,
			MaxPromptSize:    1 << 20,
			MaxStopSequences: 4,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns:        25,
				MinConns:        2,
				MaxConnLifetime: 5 * time.Minute,
			},
			SQLite: SQLiteConfig{
				Path: "byok.db",
			},
		},
		Credentials: CredentialsConfig{
			Salt: "byok-credentials-v1",
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				Default: TierLimit{RequestsPerMinute: 60, Burst: 10},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}
