package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 10

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent crawl runs",
		Long: `History lists the most recent runs, newest first, with their status
and change counts. Failed and interrupted runs are listed too.

Examples:
  zoopla-scraper history
  zoopla-scraper history -n 50 -f json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Number of runs to list")
	cmd.Flags().StringP("format", "f", "text", "Output format: text, json or markdown")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
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

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	if limit < 1 {
		return fmt.Errorf("limit must be positive, got %d", limit)
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

	runs, err := store.Runs(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load run history: %w", err)
	}
	_, err = writer.WriteRuns(runs)
	return err
}
