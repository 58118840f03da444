package config

import (
	"errors"
	"fmt"
	"strings"
)

// MinMasterKeyLength is the shortest accepted credentials.master_key.
const MinMasterKeyLength = 16

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be > 0"))
	}

	if c.Providers.Anthropic.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.anthropic.base_url is required"))
	}
	if c.Providers.OpenAI.BaseURL == "" {
		errs = append(errs, fmt.Errorf("providers.openai.base_url is required"))
	}

	if c.Engine.FinalizeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.finalize_timeout must be > 0"))
	}
	if c.Engine.MaxPromptSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_prompt_size must be > 0"))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type))
	}

	if len(c.Credentials.MasterKey) < MinMasterKeyLength {
		errs = append(errs, fmt.Errorf("credentials.master_key must be at least %d characters", MinMasterKeyLength))
	}
	if c.Credentials.Salt == "" {
		errs = append(errs, fmt.Errorf("credentials.salt is required"))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" && c.Auth.JWT.Secret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url or auth.jwt.secret is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\" or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Auth.RateLimit.Enabled {
		limits := map[string]TierLimit{"default": c.Auth.RateLimit.Default}
		for name, l := range c.Auth.RateLimit.Tiers {
			limits[name] = l
		}
		for name, l := range limits {
			if l.RequestsPerMinute < 0 || l.Burst < 0 {
				errs = append(errs, fmt.Errorf("auth.rate_limit tier %q must not be negative", name))
			}
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
