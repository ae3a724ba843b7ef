package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Engine error taxonomy.
// Callers classify failures with errors.Is against these sentinels; the
// typed FetchError and ParseError match the sentinel for their kind.
var (
	// ErrUpstreamUnavailable is returned when the probe or fetch transport is
	// down. The run aborts and no snapshot is committed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrTransient marks a fetch failure that may succeed on a later attempt
	// (timeout, 5xx, rate limit, challenge page).
	ErrTransient = errors.New("transient fetch error")

	// ErrPermanent marks a fetch failure that will never succeed unmodified
	// (4xx other than rate limiting, malformed request).
	ErrPermanent = errors.New("permanent fetch error")

	// ErrParse is returned when a listing payload cannot be extracted.
	// It is treated as permanent by the scheduler's retry layer.
	ErrParse = errors.New("malformed listing payload")

	// ErrPartitionExhausted is reported when the partitioner hits its depth
	// or resolution limit with the result count still over the cap.
	ErrPartitionExhausted = errors.New("partition exhausted")

	// ErrSnapshotCorrupt is returned when the stored snapshot fails its
	// integrity check on load.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrFailureRateExceeded is returned when too many requests of a run
	// fail. The run aborts so a near-empty crawl is never committed as a
	// mass delisting.
	ErrFailureRateExceeded = errors.New("request failure rate exceeded")
)

// FetchErrorKind classifies a fetch failure for the retry layer.
type FetchErrorKind int

const (
	// FetchTransient failures are retried with backoff.
	FetchTransient FetchErrorKind = iota

	// FetchPermanent failures are recorded and never retried.
	FetchPermanent

	// FetchUnavailable failures abort the run.
	FetchUnavailable
)

// String returns the kind name used in logs.
func (k FetchErrorKind) String() string {
	switch k {
	case FetchTransient:
		return "transient"
	case FetchPermanent:
		return "permanent"
	case FetchUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// FetchError is the classified failure returned by a fetch capability.
type FetchError struct {
	// Kind decides whether the scheduler retries, records, or aborts.
	Kind FetchErrorKind

	// StatusCode is the upstream HTTP status, or 0 for transport failures.
	StatusCode int

	// RateLimited is set for rate-limit and challenge responses. It makes
	// the scheduler slow down for the rest of the run.
	RateLimited bool

	// RetryAfter is the server-requested wait before the next attempt, taken
	// from a Retry-After header. Zero when absent.
	RetryAfter time.Duration

	// Err is the underlying cause.
	Err error
}

// NewTransientError wraps err as a retryable failure.
func NewTransientError(status int, rateLimited bool, err error) *FetchError {
	return &FetchError{Kind: FetchTransient, StatusCode: status, RateLimited: rateLimited, Err: err}
}

// NewPermanentError wraps err as a non-retryable failure.
func NewPermanentError(status int, err error) *FetchError {
	return &FetchError{Kind: FetchPermanent, StatusCode: status, Err: err}
}

// NewUnavailableError wraps err as a run-aborting transport failure.
func NewUnavailableError(err error) *FetchError {
	return &FetchError{Kind: FetchUnavailable, Err: err}
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := e.Kind.String() + " fetch error"
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.RateLimited {
		msg += " [rate limited]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Kind == FetchTransient
	case ErrPermanent:
		return e.Kind == FetchPermanent
	case ErrUpstreamUnavailable:
		return e.Kind == FetchUnavailable
	}
	return false
}

// ParseError reports a listing payload the extractor could not read.
type ParseError struct {
	// SourceURL is where the payload came from.
	SourceURL string

	// Reason describes what was malformed.
	Reason string

	// Err is the underlying decoder error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: %s", e.SourceURL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrParse and ErrPermanent.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse || target == ErrPermanent
}

// ClassifyFetchError returns the fetch kind for err. Unclassified errors are
// treated as transient.
func ClassifyFetchError(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return FetchPermanent
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		return FetchUnavailable
	}
	if errors.Is(err, ErrPermanent) {
		return FetchPermanent
	}
	return FetchTransient
}

// RetryAfterOf returns the server-requested wait carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}

// IsRateLimited reports whether err carries a rate-limit signal.
func IsRateLimited(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.RateLimited
}
