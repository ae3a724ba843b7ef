package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/api"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot over HTTP",
		Long: `Serve starts a read-only JSON API over the snapshot store:

  GET /healthz                 liveness
  GET /api/v1/listings/{key}   one listing (keys may be URL-escaped)
  GET /api/v1/runs?limit=N     recent runs, newest first

The server stops gracefully on SIGINT or SIGTERM.

Examples:
  zoopla-scraper serve
  zoopla-scraper serve --listen 0.0.0.0:9000`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address (default: "+api.DefaultAddr+")")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, err := cmd.Flags().GetString("listen"); err == nil && listen != "" {
		cfg.ListenAddr = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	server := api.NewServer(store,
		api.WithAddr(cfg.ListenAddr),
		api.WithLogger(logger),
		api.WithVersion(getVersion()),
	)
	return server.Serve(ctx)
}
