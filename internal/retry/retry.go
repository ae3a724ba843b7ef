package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// Default policy values.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
)

// Policy bounds how often and how long an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff ceiling for the first retry. It doubles on
	// every further retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff ceiling.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Ceiling returns the upper bound of the backoff before retry n (1-based):
// min(MaxDelay, BaseDelay * 2^(n-1)).
func (p Policy) Ceiling(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Delay returns a full-jitter backoff for retry n: a uniform value in
// [0, Ceiling(n)].
func (p Policy) Delay(n int) time.Duration {
	ceiling := p.Ceiling(n)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	// Number is the 1-based retry about to happen.
	Number int

	// Err is the failure that triggered the retry.
	Err error

	// Delay is the wait before the retry.
	Delay time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures Do.
type Option func(*runner)

type runner struct {
	onRetry func(Attempt)
	sleep   SleepFunc
}

// WithOnRetry registers a callback invoked before every retry.
func WithOnRetry(fn func(Attempt)) Option {
	return func(r *runner) {
		r.onRetry = fn
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(r *runner) {
		r.sleep = fn
	}
}

// ExhaustedError is returned when every attempt failed transiently.
type ExhaustedError struct {
	// Attempts is the total number of attempts made.
	Attempts int

	// Err is the last failure.
	Err error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the last failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, fails non-transiently, the policy is
// exhausted, or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts ...Option) error {
	r := &runner{sleep: Sleep}
	for _, opt := range opts {
		opt(r)
	}

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if model.ClassifyFetchError(err) != model.FetchTransient {
			return err
		}
		if attempts > p.MaxRetries {
			return &ExhaustedError{Attempts: attempts, Err: err}
		}

		delay := max(p.Delay(attempts), model.RetryAfterOf(err))
		if p.MaxDelay > 0 {
			delay = min(delay, p.MaxDelay)
		}
		if r.onRetry != nil {
			r.onRetry(Attempt{Number: attempts, Err: err, Delay: delay})
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
