// Package cli provides the start-up steps shared by cmd/paylog and
// cmd/paylogctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"paylog/internal/config"
	"paylog/internal/log"
	"paylog/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default. A nil out means stdout.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stdout
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    out,
	})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", "log_level", cfg.LogLevel)
	}
	return logger
}

// Options select how a binary starts.
type Options struct {
	Component string
	// Full validates the whole configuration; otherwise only what is needed
	// to reach the database.
	Full bool
	// LogOutput defaults to stdout.
	LogOutput io.Writer
}

// Bootstrap loads .env and the configuration and sets up logging. The
// config and logger are returned even when validation fails.
func Bootstrap(opts Options) (*config.Config, *log.Logger, error) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, opts.Component, opts.LogOutput)

	validate := cfg.ValidateDatabase
	if opts.Full {
		validate = cfg.Validate
	}
	if err := validate(); err != nil {
		return cfg, logger, err
	}
	return cfg, logger, nil
}

// StoreOptions maps the database settings to storage options.
func StoreOptions(cfg *config.Config) (storage.Options, error) {
	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		return storage.Options{}, err
	}
	return storage.Options{
		Dialect:     dialect,
		SQLitePath:  cfg.SQLiteDBPath,
		DatabaseURL: cfg.DatabaseURL,
	}, nil
}

// OpenStore opens the configured database. Pending migrations are applied
// unless skipMigrations is set.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger, skipMigrations bool) (*storage.Store, error) {
	opts, err := StoreOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.SkipMigrations = skipMigrations

	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("Database ready", "driver", opts.Dialect, "migrations", !skipMigrations)
	return store, nil
}
