package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/rhuss/byok/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. Config file (explicit path, BYOK_CONFIG env, ./config.yaml,
//     ./config.toml, /etc/byok/config.yaml), decoded by extension
//  3. BYOK_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "config file loaded", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path. Returns empty string if
// no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("BYOK_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"config.toml",
		"/etc/byok/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadFile decodes a YAML or TOML file into cfg. Fields not present in the
// file retain their current (default) values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	return err
}

// applyEnvOverrides maps BYOK_* environment variables to config fields.
// Malformed numeric or boolean values are reported instead of ignored.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("BYOK_STORAGE", &cfg.Storage.Type)
	setString("BYOK_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setString("BYOK_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	setString("BYOK_MASTER_KEY", &cfg.Credentials.MasterKey)
	setString("BYOK_KEY_SALT", &cfg.Credentials.Salt)
	setString("BYOK_AUTH_TYPE", &cfg.Auth.Type)
	setString("BYOK_JWT_SECRET", &cfg.Auth.JWT.Secret)
	setString("BYOK_JWT_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	setString("BYOK_JWT_ISSUER", &cfg.Auth.JWT.Issuer)
	setString("BYOK_ANTHROPIC_BASE_URL", &cfg.Providers.Anthropic.BaseURL)
	setString("BYOK_ANTHROPIC_MODEL", &cfg.Providers.Anthropic.DefaultModel)
	setString("BYOK_OPENAI_BASE_URL", &cfg.Providers.OpenAI.BaseURL)
	setString("BYOK_OPENAI_MODEL", &cfg.Providers.OpenAI.DefaultModel)
	setString("BYOK_LOG_LEVEL", &cfg.Logging.Level)
	setString("BYOK_LOG_FORMAT", &cfg.Logging.Format)
	setString("BYOK_DEBUG", &cfg.Logging.Debug)

	if v := os.Getenv("BYOK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BYOK_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BYOK_STORAGE_SIZE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BYOK_STORAGE_SIZE: %w", err)
		}
		cfg.Storage.MaxSize = size
	}
	if v := os.Getenv("BYOK_RATE_LIMIT"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BYOK_RATE_LIMIT: %w", err)
		}
		cfg.Auth.RateLimit.Enabled = enabled
	}
	if v := os.Getenv("BYOK_METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BYOK_METRICS_ENABLED: %w", err)
		}
		cfg.Observability.Metrics.Enabled = enabled
	}

	// BYOK_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("BYOK_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("BYOK_API_KEYS: %w", err)
		}
		cfg.Auth.APIKeys = keys
	}

	return nil
}

// resolveFileReferences reads _file fields into their value fields. An
// explicit value always wins over its file reference.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name string
		file string
		dst  *string
	}{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"credentials.master_key_file", cfg.Credentials.MasterKeyFile, &cfg.Credentials.MasterKey},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, struct {
			name string
			file string
			dst  *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
