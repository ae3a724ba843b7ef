package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/config"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/dedup"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/identity"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/normalize"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/partition"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/pipeline"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/publish"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/report"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/retry"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/scheduler"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/transport"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl the configured searches and report what changed",
		Long: `Run performs one incremental crawl.

Every search is probed and split into regions whose result count fits under
the source's cap. All regions are paged concurrently under an adaptive rate
limit, listings are merged by identity, and the result is reconciled against
the previous snapshot. The new snapshot is committed only when the crawl
completed; a failed run leaves the previous snapshot untouched.

Examples:
  # Crawl every search in .zoopla-scraper.yaml
  zoopla-scraper run

  # Crawl one configured search
  zoopla-scraper run --search london-sale

  # Crawl an area without a config file
  zoopla-scraper run --base-url https://listings.example/api --area SE1 --category rent

  # Write a Markdown report
  zoopla-scraper run -f markdown -o reports/latest.md

  # Route requests through a SOCKS5 proxy
  zoopla-scraper run --proxy 127.0.0.1:9050`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	// Source flags
	cmd.Flags().String("base-url", "", "Root URL of the listing search API")
	cmd.Flags().StringP("proxy", "x", "", "SOCKS5 proxy address (host:port)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")

	// Crawl flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers, "Number of concurrent page fetchers")
	cmd.Flags().Float64P("rate", "r", config.DefaultRate, "Initial requests per second (0 = unlimited)")
	cmd.Flags().Int("cap", config.DefaultCap, "Result cap of the source per query")
	cmd.Flags().Int("max-depth", config.DefaultMaxDepth, "Maximum number of region splits")
	cmd.Flags().String("tie-policy", dedup.TieLastWins.String(), "Duplicate tie policy: last or first")
	cmd.Flags().Duration("retention", config.DefaultRetention, "How long delisted listings are kept (negative = forever)")

	// Search flags
	cmd.Flags().StringSliceP("search", "s", nil, "Only crawl the named searches")
	cmd.Flags().String("area", "", "Crawl this area instead of the configured searches")
	cmd.Flags().String("category", string(model.CategorySale), "Category for --area: sale or rent")

	// Storage and publishing flags
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default: SQLite in the data directory)")
	cmd.Flags().String("data-dir", "", "Directory of the SQLite database")
	cmd.Flags().String("amqp-url", "", "Publish change events to this AMQP broker")

	// Report flags
	cmd.Flags().StringP("format", "f", config.DefaultReportFormat, "Report format: text, json or markdown")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file (creates directories if needed)")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.ValidateForRun(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, err := setupLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out, closeOut, err := openOutput(cmd, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // nothing useful to do on close failure

	return runCrawl(ctx, cfg, logger, out)
}

// applyRunFlags copies the flags the user set into cfg. Unset flags keep
// the value from the config file or environment.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}
	set("base-url", func() (e error) { cfg.BaseURL, e = flags.GetString("base-url"); return })
	set("proxy", func() (e error) { cfg.ProxyAddress, e = flags.GetString("proxy"); return })
	set("timeout", func() (e error) { cfg.Timeout, e = flags.GetDuration("timeout"); return })
	set("workers", func() (e error) { cfg.Workers, e = flags.GetInt("workers"); return })
	set("rate", func() (e error) { cfg.Rate, e = flags.GetFloat64("rate"); return })
	set("cap", func() (e error) { cfg.Cap, e = flags.GetInt("cap"); return })
	set("max-depth", func() (e error) { cfg.MaxDepth, e = flags.GetInt("max-depth"); return })
	set("tie-policy", func() (e error) { cfg.TiePolicy, e = flags.GetString("tie-policy"); return })
	set("retention", func() (e error) { cfg.Retention, e = flags.GetDuration("retention"); return })
	set("database-url", func() (e error) { cfg.DatabaseURL, e = flags.GetString("database-url"); return })
	set("data-dir", func() (e error) { cfg.DBDir, e = flags.GetString("data-dir"); return })
	set("amqp-url", func() (e error) { cfg.AMQPURL, e = flags.GetString("amqp-url"); return })
	set("format", func() (e error) { cfg.ReportFormat, e = flags.GetString("format"); return })
	set("output", func() (e error) { cfg.ReportFile, e = flags.GetString("output"); return })
	if err != nil {
		return err
	}

	if _, err := report.ParseFormat(cfg.ReportFormat); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	area, err := flags.GetString("area")
	if err != nil {
		return err
	}
	if area != "" {
		category, err := flags.GetString("category")
		if err != nil {
			return err
		}
		cfg.Searches = []model.QuerySpec{{
			Name:     area,
			Category: model.Category(strings.ToLower(category)),
			Area:     area,
		}}
		return nil
	}

	names, err := flags.GetStringSlice("search")
	if err != nil {
		return err
	}
	if len(names) > 0 {
		selected, err := selectSearches(cfg.Searches, names)
		if err != nil {
			return err
		}
		cfg.Searches = selected
	}
	return nil
}

// selectSearches returns the searches with the given names, in config order.
func selectSearches(searches []model.QuerySpec, names []string) ([]model.QuerySpec, error) {
	var selected []model.QuerySpec
	for _, s := range searches {
		if slices.Contains(names, s.Name) {
			selected = append(selected, s)
		}
	}
	for _, name := range names {
		if !slices.ContainsFunc(selected, func(s model.QuerySpec) bool { return s.Name == name }) {
			return nil, fmt.Errorf("%w: no search named %q", config.ErrInvalidSearch, name)
		}
	}
	return selected, nil
}

// runCrawl wires the crawl components for cfg, executes one run and writes
// its report to out.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(format, out, getVersion())
	if err != nil {
		return err
	}

	client, err := transport.New(cfg.BaseURL,
		transport.WithProxy(cfg.ProxyAddress),
		transport.WithTimeout(cfg.Timeout),
		transport.WithUserAgent(cfg.UserAgent),
		transport.WithCookie(cfg.Cookie),
		transport.WithHeaders(cfg.Headers),
		transport.WithMaxBodySize(cfg.MaxBodySize),
		transport.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create source client: %w", err)
	}
	if cfg.ProxyAddress != "" {
		if err := client.CheckProxy(ctx); err != nil {
			return fmt.Errorf("proxy check failed (make sure a SOCKS5 proxy is running at %s): %w",
				cfg.ProxyAddress, err)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries

	partitioner := partition.New(client,
		partition.WithCap(cfg.Cap),
		partition.WithMaxDepth(cfg.MaxDepth),
		partition.WithPriceCeiling(cfg.PriceCeiling),
		partition.WithRetryPolicy(policy),
		partition.WithLogger(logger),
	)

	normalizer := normalize.New(
		normalize.WithResolver(identity.NewResolver()),
		normalize.WithLogger(logger),
	)

	crawler := scheduler.New(client, normalizer,
		scheduler.WithWorkers(cfg.Workers),
		scheduler.WithPageSize(cfg.PageSize),
		scheduler.WithCap(cfg.Cap),
		scheduler.WithRetryPolicy(policy),
		scheduler.WithRate(cfg.Rate, scheduler.DefaultBurst),
		scheduler.WithMinRate(cfg.MinRate),
		scheduler.WithFailureRate(cfg.FailureRate, scheduler.DefaultMinRequests),
		scheduler.WithLogger(logger),
	)

	p := pipeline.DefaultPipeline(store, partitioner, crawler,
		[]pipeline.Option{pipeline.WithLogger(logger)},
		pipeline.WithPipelineRetention(cfg.Retention),
		pipeline.WithPipelinePublisher(publisher),
	)
	runner := pipeline.NewRunner(p, store,
		pipeline.WithDedupOptions(dedup.WithTiePolicy(cfg.Tie())),
	)

	logger.Info("starting run",
		"searches", len(cfg.Searches),
		"workers", cfg.Workers,
		"rate", cfg.Rate,
		"proxy", cfg.ProxyAddress != "",
	)

	state, runErr := runner.Run(ctx, cfg.Searches)

	if _, err := writer.Write(&report.RunReport{Summary: state.Summary, Changes: state.ChangeSet}); err != nil {
		logger.Error("failed to write report", "error", err)
		if runErr == nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("%w: interrupted", errRunFailed)
		}
		return fmt.Errorf("%w: %w", errRunFailed, runErr)
	}
	return nil
}

// newPublisher returns an AMQP publisher when a broker is configured and
// a no-op publisher otherwise.
func newPublisher(cfg *config.Config, logger *slog.Logger) (publish.Publisher, error) {
	if cfg.AMQPURL == "" {
		return publish.Noop{}, nil
	}
	p, err := publish.DialAMQP(cfg.AMQPURL,
		publish.WithExchange(cfg.AMQPExchange),
		publish.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	return p, nil
}
