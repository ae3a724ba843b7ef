package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/config"
)

// errRunFailed is returned when a crawl run ended without committing. The
// run summary has already been printed.
var errRunFailed = errors.New("run failed")

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zoopla-scraper",
		Short: "Incremental crawler for property listings",
		Long: `zoopla-scraper crawls property listings and keeps a snapshot of every
listing it has seen. Each run splits the configured searches into regions
small enough to page completely, merges duplicates, and reports which
listings were added, updated or delisted since the previous run.

Configuration is read from .zoopla-scraper.yaml (see 'zoopla-scraper init'),
then from a .env file and ZOOPLA_* environment variables, then from flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: "+config.DefaultConfigFile+" in current or home directory)")
	cmd.PersistentFlags().String("env-file", "",
		"Dotenv file to load (default: "+config.DefaultEnvFile+" if present)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", "",
		"Log format: console, text or json (default: console)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewLookupCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
