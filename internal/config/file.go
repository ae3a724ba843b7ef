package config

import (
	"maps"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// SourceConfig overrides how the listing source is reached.
type SourceConfig struct {
	BaseURL   string            `yaml:"baseURL,omitempty"`
	Proxy     string            `yaml:"proxy,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
	UserAgent string            `yaml:"userAgent,omitempty"`
	Cookie    string            `yaml:"cookie,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// CrawlConfig overrides crawl tuning. Zero values keep the current setting.
type CrawlConfig struct {
	Workers      int           `yaml:"workers,omitempty"`
	PageSize     int           `yaml:"pageSize,omitempty"`
	Cap          int           `yaml:"cap,omitempty"`
	MaxDepth     int           `yaml:"maxDepth,omitempty"`
	PriceCeiling int64         `yaml:"priceCeiling,omitempty"`
	Rate         float64       `yaml:"rate,omitempty"`
	MinRate      float64       `yaml:"minRate,omitempty"`
	MaxRetries   int           `yaml:"maxRetries,omitempty"`
	FailureRate  float64       `yaml:"failureRate,omitempty"`
	TiePolicy    string        `yaml:"tiePolicy,omitempty"`
	Retention    time.Duration `yaml:"retention,omitempty"`
}

// StorageConfig overrides where snapshots are kept.
type StorageConfig struct {
	DatabaseURL string `yaml:"databaseURL,omitempty"`
	DataDir     string `yaml:"dataDir,omitempty"`
}

// PublishConfig enables change-event publishing.
type PublishConfig struct {
	AMQPURL  string `yaml:"amqpURL,omitempty"`
	Exchange string `yaml:"exchange,omitempty"`
}

// File is the structure of the .zoopla-scraper.yaml configuration file.
type File struct {
	Source   SourceConfig      `yaml:"source,omitempty"`
	Crawl    CrawlConfig       `yaml:"crawl,omitempty"`
	Storage  StorageConfig     `yaml:"storage,omitempty"`
	Publish  PublishConfig     `yaml:"publish,omitempty"`
	Searches []model.QuerySpec `yaml:"searches"`
}

// ApplyTo copies every non-zero setting of the file into c. Searches
// replace the configured list when the file has any.
func (f *File) ApplyTo(c *Config) {
	setString(&c.BaseURL, f.Source.BaseURL)
	setString(&c.ProxyAddress, f.Source.Proxy)
	setPositive(&c.Timeout, f.Source.Timeout)
	setString(&c.UserAgent, f.Source.UserAgent)
	setString(&c.Cookie, f.Source.Cookie)
	if len(f.Source.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(f.Source.Headers))
		}
		maps.Copy(c.Headers, f.Source.Headers)
	}

	setPositive(&c.Workers, f.Crawl.Workers)
	setPositive(&c.PageSize, f.Crawl.PageSize)
	setPositive(&c.Cap, f.Crawl.Cap)
	setPositive(&c.MaxDepth, f.Crawl.MaxDepth)
	setPositive(&c.PriceCeiling, f.Crawl.PriceCeiling)
	setPositive(&c.Rate, f.Crawl.Rate)
	setPositive(&c.MinRate, f.Crawl.MinRate)
	setPositive(&c.MaxRetries, f.Crawl.MaxRetries)
	setPositive(&c.FailureRate, f.Crawl.FailureRate)
	setString(&c.TiePolicy, f.Crawl.TiePolicy)
	if f.Crawl.Retention != 0 {
		c.Retention = f.Crawl.Retention
	}

	setString(&c.DatabaseURL, f.Storage.DatabaseURL)
	setString(&c.DBDir, f.Storage.DataDir)

	setString(&c.AMQPURL, f.Publish.AMQPURL)
	setString(&c.AMQPExchange, f.Publish.Exchange)

	if len(f.Searches) > 0 {
		c.Searches = make([]model.QuerySpec, len(f.Searches))
		for i, s := range f.Searches {
			c.Searches[i] = s.Clone()
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPositive[T int | int64 | float64 | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}
