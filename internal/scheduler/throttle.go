package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/retry"
)

// Throttle defaults.
const (
	// DefaultRate is the initial request rate in requests per second.
	DefaultRate = 2.0

	// DefaultBurst is the limiter's token bucket size.
	DefaultBurst = 1

	// DefaultMinRate is the floor the rate never drops below.
	DefaultMinRate = 0.1

	// DefaultPenaltyStep is the extra delay added on the first penalty.
	DefaultPenaltyStep = 250 * time.Millisecond

	// DefaultMaxPenaltyDelay caps the extra inter-request delay.
	DefaultMaxPenaltyDelay = 10 * time.Second
)

// Throttle paces requests across all workers of one run.
//
// It is the only state workers share. Penalize is called by a worker that
// observed a rate-limit signal; Wait is called before every fetch. Both are
// safe for concurrent use. A Throttle only ever slows down.
type Throttle struct {
	limiter *rate.Limiter
	minRate rate.Limit

	mu          sync.Mutex
	delay       time.Duration
	step        time.Duration
	maxDelay    time.Duration
	adjustments int
}

// NewThrottle creates a Throttle allowing r requests per second with the
// given burst. The rate never drops below minRate; penalties add step to
// the inter-request delay, doubling on each further penalty up to maxDelay.
func NewThrottle(r float64, burst int, minRate float64, step, maxDelay time.Duration) *Throttle {
	limit := rate.Inf
	if r > 0 {
		limit = rate.Limit(r)
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limiter:  rate.NewLimiter(limit, burst),
		minRate:  rate.Limit(minRate),
		step:     step,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the next request may be issued.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	t.mu.Lock()
	delay := t.delay
	t.mu.Unlock()
	return retry.Sleep(ctx, delay)
}

// Penalize slows the throttle down after a rate-limit signal: the rate is
// halved (not below the floor) and the extra delay grows.
func (t *Throttle) Penalize() {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.limiter.Limit()
	next := current / 2
	if current == rate.Inf {
		next = rate.Limit(DefaultRate)
	}
	if next < t.minRate {
		next = t.minRate
	}
	t.limiter.SetLimit(next)

	switch {
	case t.delay == 0:
		t.delay = t.step
	default:
		t.delay *= 2
	}
	if t.maxDelay > 0 && t.delay > t.maxDelay {
		t.delay = t.maxDelay
	}
	t.adjustments++
}

// Rate returns the current request rate.
func (t *Throttle) Rate() float64 {
	return float64(t.limiter.Limit())
}

// Delay returns the current extra inter-request delay.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Adjustments returns how many times the throttle was penalized.
func (t *Throttle) Adjustments() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adjustments
}
