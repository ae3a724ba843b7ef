package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/report"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/snapshot"
)

// NewLookupCmd creates the lookup command.
func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <key>",
		Short: "Show one listing from the snapshot",
		Long: `Lookup prints the stored record of one listing, including delisted
listings still within the retention period.

Keys are derived from the strongest identifier a listing carries:
  uprn:<uprn>         property reference number
  listing:<id>        marketplace listing identifier
  url:<url>           canonical details URL
  geo:<hash>:<addr>   location and normalized address

Examples:
  zoopla-scraper lookup listing:61234567
  zoopla-scraper lookup uprn:100023336956 -f json`,
		Args: cobra.ExactArgs(1),
		RunE: runLookupCmd,
	}

	cmd.Flags().StringP("format", "f", "text", "Output format: text, json or markdown")

	return cmd
}

// runLookupCmd executes the lookup command.
func runLookupCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	formatName, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(format, cmd.OutOrStdout(), getVersion())
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

	entry, err := store.Get(ctx, args[0])
	if errors.Is(err, snapshot.ErrNotFound) {
		return fmt.Errorf("listing %q not found in the snapshot", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to load listing: %w", err)
	}
	_, err = writer.WriteEntry(entry)
	return err
}
