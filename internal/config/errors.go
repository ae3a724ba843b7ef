package config

import "errors"

// Configuration validation errors returned by Validate and ValidateForRun.
var (
	// ErrNoBaseURL is returned when a run has no source to crawl.
	ErrNoBaseURL = errors.New("no base URL: set ZOOPLA_BASE_URL, source.baseURL or --base-url")

	// ErrNoSearch is returned when a run has nothing to search for.
	ErrNoSearch = errors.New("no searches configured: add searches to the config file or use --area")

	// ErrInvalidSearch is returned when a configured search is malformed.
	ErrInvalidSearch = errors.New("invalid search")

	// ErrNoStore is returned when neither a database URL nor a data
	// directory is configured.
	ErrNoStore = errors.New("no snapshot store: set a database URL or data directory")

	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidWorkers     = errors.New("invalid worker count: must be positive")
	ErrInvalidPageSize    = errors.New("invalid page size: must be positive")
	ErrInvalidCap         = errors.New("invalid cap: must be positive and at least the page size")
	ErrInvalidMaxDepth    = errors.New("invalid max depth: must be non-negative")
	ErrInvalidRate        = errors.New("invalid rate: rate must be non-negative and min rate positive and not above rate")
	ErrInvalidMaxRetries  = errors.New("invalid max retries: must be non-negative")
	ErrInvalidFailureRate = errors.New("invalid failure rate: must be between 0 and 1")
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
	ErrInvalidTiePolicy   = errors.New("invalid tie policy: expected first or last")

	// ErrInvalidEnv is returned when an environment override cannot be
	// parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)
