package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/config"
)

//go:embed templates/zoopla-scraper.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a zoopla-scraper configuration file",
		Long: `Init writes a commented .zoopla-scraper.yaml to the current directory.

The generated file includes:
- The source settings (base URL, proxy, timeouts)
- Crawl tuning with the default values
- Storage and publishing settings
- An example search

Examples:
  # Create .zoopla-scraper.yaml in the current directory
  zoopla-scraper init

  # Create the config file at a specific path
  zoopla-scraper init -o ~/.config/zoopla-scraper/config.yaml

  # Overwrite an existing file
  zoopla-scraper init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/zoopla-scraper.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The file may later hold cookies and database passwords.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to set:")
	fmt.Fprintln(out, "  - the base URL of the listing source")
	fmt.Fprintln(out, "  - the searches to crawl")
	fmt.Fprintln(out, "  - a PostgreSQL database or AMQP broker, if used")

	return nil
}
