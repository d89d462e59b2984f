package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"atsbeaters/internal/cli"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/observability"
)

// configFileEnv names an explicit config file, overriding the search paths
const configFileEnv = "ATSBEATERS_CONFIG_FILE"

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// A missing .env is normal; real environment variables still apply
	_ = godotenv.Load()

	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig(os.Getenv(configFileEnv))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Initialize logging
	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	vaultClient, err := config.ApplyVaultSecrets(cfg, logger)
	if err != nil {
		logger.LogError(err, "Failed to load secrets from Vault")
		return 1
	}

	obs, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, cli.Version))
	if err != nil {
		logger.LogError(err, "Failed to initialize observability")
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to flush telemetry")
		}
	}()

	logger.Debug("Starting atsbeaters",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"ai_provider", cfg.AI.Provider,
		"session_backend", cfg.Session.Backend,
		"observability", obs.Enabled())

	opts := []cli.Option{cli.WithObservability(obs)}
	if vaultClient != nil {
		opts = append(opts, cli.WithVault(vaultClient))
	}

	// Execute command with cancellable context
	if err := cli.Execute(ctx, cfg, logger, opts...); err != nil {
		logger.LogError(err, "Application execution failed")
		return 1
	}
	return 0
}
