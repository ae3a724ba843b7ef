package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/config"
	applog "github.com/Evan5764/zoopla-co-uk-scraper/internal/log"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/snapshot"
)

// stringFlag returns the value of a flag defined on cmd or inherited from
// the root command, or "" when neither defines it.
func stringFlag(cmd *cobra.Command, name string) string {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig builds the configuration from the config file, the
// environment and the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(stringFlag(cmd, "config"), stringFlag(cmd, "env-file"))
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}
	if format := stringFlag(cmd, "log-format"); format != "" {
		cfg.LogFormat = format
	}
	return cfg, nil
}

// setupLogger creates the sanitizing logger for cfg and makes it the
// default.
func setupLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	logger, err := applog.New(cmd.ErrOrStderr(), cfg.LogFormat, cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	slog.SetDefault(logger)
	return logger, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens the snapshot store selected by cfg.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.Store, error) {
	store, err := snapshot.Open(ctx, cfg.DatabaseURL, cfg.DBDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	if cfg.DatabaseURL != "" {
		logger.Debug("snapshot store opened", "database_url", cfg.DatabaseURL)
	} else {
		logger.Debug("snapshot store opened", "dir", cfg.DBDir)
	}
	return store, nil
}

// openOutput returns the report destination: path when set, else stdout.
// The returned close function must be called when done.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list addresses and agent phone numbers; keep them private.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
