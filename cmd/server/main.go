// Command server runs the byok completion service.
//
// Configuration is read from a YAML or TOML file (see pkg/config) with
// BYOK_* environment overrides. A .env file in the working directory is
// loaded first when present.
//
// Usage:
//
//	server [-config path]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rhuss/byok/pkg/api"
	"github.com/rhuss/byok/pkg/config"
	"github.com/rhuss/byok/pkg/credentials"
	"github.com/rhuss/byok/pkg/debug"
	"github.com/rhuss/byok/pkg/engine"
	"github.com/rhuss/byok/pkg/transport"
	transporthttp "github.com/rhuss/byok/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a config.yaml or config.toml")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()

	cipher, err := credentials.NewCipher(cfg.Credentials.MasterKey, cfg.Credentials.Salt)
	if err != nil {
		return err
	}
	creds := credentials.NewManager(store, cipher)

	factory := buildFactory(cfg.Providers)

	eng, err := engine.New(factory, creds, store, engine.Config{
		FinalizeTimeout: cfg.Engine.FinalizeTimeout,
		Validation: api.ValidationConfig{
			MaxPromptSize:    cfg.Engine.MaxPromptSize,
			MaxStopSequences: cfg.Engine.MaxStopSequences,
		},
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	authMW, err := buildAuth(cfg.Auth, metricsPath)
	if err != nil {
		return err
	}

	adapter := transporthttp.NewAdapter(transporthttp.Services{
		Completions: eng,
		Threads:     store,
		Credentials: creds,
		Providers:   factory,
		Health:      []transport.HealthChecker{store},
	}, transporthttp.Config{
		MaxBodySize:   cfg.Server.MaxBodyBytes,
		MetricsPath:   metricsPath,
		ValidateOnSet: cfg.Credentials.ValidateOnSet,
		Logger:        slog.Default(),
	}, authMW)

	srv := transporthttp.NewServer(adapter.Handler(),
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	slog.Info("byok configured",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"providers", factory.SupportedProviders(),
	)

	return srv.Run(ctx)
}
