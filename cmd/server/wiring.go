package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/byok/pkg/auth"
	"github.com/rhuss/byok/pkg/auth/apikey"
	"github.com/rhuss/byok/pkg/auth/jwt"
	"github.com/rhuss/byok/pkg/auth/noop"
	"github.com/rhuss/byok/pkg/config"
	"github.com/rhuss/byok/pkg/provider/anthropic"
	"github.com/rhuss/byok/pkg/provider/factory"
	"github.com/rhuss/byok/pkg/provider/openai"
	"github.com/rhuss/byok/pkg/storage"
	"github.com/rhuss/byok/pkg/storage/memory"
	"github.com/rhuss/byok/pkg/storage/postgres"
	"github.com/rhuss/byok/pkg/storage/sqlite"
	"github.com/rhuss/byok/pkg/transport"
)

// openStore creates the configured backend.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil

	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "migrate_on_start", cfg.Postgres.MigrateOnStart)
		return s, nil

	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// buildFactory registers both vendors with the configured endpoints.
func buildFactory(cfg config.ProvidersConfig) *factory.Factory {
	return factory.NewDefault(
		anthropic.Config{
			BaseURL:      cfg.Anthropic.BaseURL,
			Version:      cfg.Anthropic.Version,
			DefaultModel: cfg.Anthropic.DefaultModel,
			MaxTokens:    cfg.Anthropic.MaxTokens,
			Timeout:      cfg.Anthropic.Timeout,
		},
		openai.Config{
			BaseURL:      cfg.OpenAI.BaseURL,
			Organization: cfg.OpenAI.Organization,
			DefaultModel: cfg.OpenAI.DefaultModel,
			Timeout:      cfg.OpenAI.Timeout,
		},
	)
}

// buildAuth returns the authentication and rate limit middleware for the
// configured auth type.
func buildAuth(cfg config.AuthConfig, metricsPath string) (transport.Middleware, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}

	switch cfg.Type {
	case "", "none":
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}

	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
				},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}

	case "jwt":
		a, err := jwt.New(jwt.Config{
			Issuer:    cfg.JWT.Issuer,
			Audience:  cfg.JWT.Audience,
			JWKSURL:   cfg.JWT.JWKSURL,
			Secret:    []byte(cfg.JWT.Secret),
			UserClaim: cfg.JWT.UserClaim,
			TierClaim: cfg.JWT.TierClaim,
			CacheTTL:  cfg.JWT.CacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring jwt auth: %w", err)
		}
		chain.Authenticators = []auth.Authenticator{a}

	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for name, t := range cfg.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
		}
		limiter = auth.NewInProcessLimiter(tiers, auth.TierConfig{
			RequestsPerMinute: cfg.RateLimit.Default.RequestsPerMinute,
			Burst:             cfg.RateLimit.Default.Burst,
		})
	}

	bypass := append([]string(nil), auth.DefaultBypassEndpoints...)
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}

	slog.Info("authentication configured", "type", cfg.Type, "rate_limit", cfg.RateLimit.Enabled)
	return auth.Middleware(chain, limiter, bypass), nil
}
