package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/dedup"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "zoopla-scraper"

	// DefaultTimeout bounds one HTTP request to the source.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "zoopla-scraper/1.0"

	// DefaultMaxBodySize limits how much of a response is read.
	DefaultMaxBodySize = 8 * 1024 * 1024

	// DefaultWorkers is the number of concurrent page fetchers.
	DefaultWorkers = 6

	// DefaultPageSize is the number of listings requested per page.
	DefaultPageSize = 25

	// DefaultCap is the number of results the source returns for one query
	// before truncating.
	DefaultCap = 1000

	// DefaultMaxDepth bounds how often a region is split.
	DefaultMaxDepth = 16

	// DefaultPriceCeiling is the split point for open-ended price ranges.
	DefaultPriceCeiling = 1_000_000

	// DefaultRate is the initial request rate in requests per second.
	DefaultRate = 2.0

	// DefaultMinRate is the floor the adaptive throttle never drops below.
	DefaultMinRate = 0.1

	// DefaultMaxRetries is the number of retries for a transient failure.
	DefaultMaxRetries = 5

	// DefaultFailureRate aborts a run once more than this share of page
	// requests failed.
	DefaultFailureRate = 0.5

	// DefaultRetention is how long delisted listings are kept.
	DefaultRetention = 30 * 24 * time.Hour

	// DefaultAMQPExchange is the topic exchange change events go to.
	DefaultAMQPExchange = "zoopla.listings"

	// DefaultLogFormat selects colored console logs.
	DefaultLogFormat = "console"

	// DefaultReportFormat selects the plain-text run report.
	DefaultReportFormat = "text"

	// DefaultListenAddr is where the lookup API listens.
	DefaultListenAddr = "127.0.0.1:8080"
)

// Config holds every option of the tool. It is filled from defaults, the
// YAML file, the environment and CLI flags, in that order, and passed down
// explicitly.
type Config struct {
	// BaseURL is the root of the listing source's search API.
	BaseURL string

	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	// Empty means direct connections.
	ProxyAddress string

	// Timeout bounds one HTTP request.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Cookie is a raw cookie string sent with every request.
	Cookie string

	// Headers are extra headers sent with every request.
	Headers map[string]string

	// MaxBodySize caps the bytes read from one response.
	MaxBodySize int64

	// Workers is the number of concurrent page fetchers.
	Workers int

	// PageSize is the number of listings requested per page.
	PageSize int

	// Cap is the source's result cap per query.
	Cap int

	// MaxDepth bounds region splitting.
	MaxDepth int

	// PriceCeiling is the split point for open-ended price ranges.
	PriceCeiling int64

	// Rate is the initial request rate; MinRate is its floor.
	Rate    float64
	MinRate float64

	// MaxRetries is the number of retries per transient failure.
	MaxRetries int

	// FailureRate is the share of failed page requests that aborts a run.
	FailureRate float64

	// TiePolicy picks between two equally complete records sharing a key
	// ("last" or "first").
	TiePolicy string

	// Retention is how long delisted listings are kept. Negative keeps
	// them forever.
	Retention time.Duration

	// DatabaseURL selects PostgreSQL when it is a postgres:// URL.
	DatabaseURL string

	// DBDir holds the SQLite database when DatabaseURL is empty.
	DBDir string

	// AMQPURL enables change-event publishing when set.
	AMQPURL string

	// AMQPExchange is the topic exchange events are published to.
	AMQPExchange string

	// Searches are the queries crawled by one run.
	Searches []model.QuerySpec

	// ConfigFilePath is the YAML file to load. Empty searches the usual
	// locations.
	ConfigFilePath string

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is "console", "text" or "json".
	LogFormat string

	// ReportFormat is "text", "json" or "markdown".
	ReportFormat string

	// ReportFile receives the run report instead of stdout.
	ReportFile string

	// ListenAddr is where the lookup API listens.
	ListenAddr string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:      DefaultTimeout,
		UserAgent:    DefaultUserAgent,
		MaxBodySize:  DefaultMaxBodySize,
		Workers:      DefaultWorkers,
		PageSize:     DefaultPageSize,
		Cap:          DefaultCap,
		MaxDepth:     DefaultMaxDepth,
		PriceCeiling: DefaultPriceCeiling,
		Rate:         DefaultRate,
		MinRate:      DefaultMinRate,
		MaxRetries:   DefaultMaxRetries,
		FailureRate:  DefaultFailureRate,
		TiePolicy:    dedup.TieLastWins.String(),
		Retention:    DefaultRetention,
		DBDir:        XDGDataDir(),
		AMQPExchange: DefaultAMQPExchange,
		LogFormat:    DefaultLogFormat,
		ReportFormat: DefaultReportFormat,
		ListenAddr:   DefaultListenAddr,
	}
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/zoopla-scraper.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/zoopla-scraper.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the options every command relies on.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if c.Cap <= 0 || c.PageSize > c.Cap {
		return ErrInvalidCap
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Rate < 0 || c.MinRate <= 0 || (c.Rate > 0 && c.MinRate > c.Rate) {
		return ErrInvalidRate
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		return ErrInvalidFailureRate
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if _, ok := dedup.ParseTiePolicy(c.TiePolicy); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTiePolicy, c.TiePolicy)
	}
	if c.DatabaseURL == "" && c.DBDir == "" {
		return ErrNoStore
	}
	return nil
}

// ValidateForRun checks everything Validate does plus what a crawl run
// needs: a source and at least one valid search.
func (c *Config) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	if len(c.Searches) == 0 {
		return ErrNoSearch
	}
	seen := make(map[string]bool, len(c.Searches))
	for i, s := range c.Searches {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: search %d: %w", ErrInvalidSearch, i, err)
		}
		if s.Name != "" {
			if seen[s.Name] {
				return fmt.Errorf("%w: duplicate search name %q", ErrInvalidSearch, s.Name)
			}
			seen[s.Name] = true
		}
	}
	return nil
}

// Tie returns the parsed tie policy, last-wins when unrecognized.
func (c *Config) Tie() dedup.TiePolicy {
	p, _ := dedup.ParseTiePolicy(c.TiePolicy)
	return p
}
