package scheduler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/retry"
)

// Scheduler defaults.
const (
	DefaultWorkers              = 6
	DefaultQueueSize            = 64
	DefaultPageSize             = 25
	DefaultCap                  = 1000
	DefaultFailureRateThreshold = 0.5
	DefaultMinRequests          = 20
)

// Fetcher retrieves one page of listings.
// Failures should be *model.FetchError values so they can be classified;
// unclassified errors are treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context, req model.PageRequest) (*model.RawPage, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req model.PageRequest) (*model.RawPage, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req model.PageRequest) (*model.RawPage, error) {
	return f(ctx, req)
}

// Normalizer turns a raw listing payload into a record.
type Normalizer interface {
	Normalize(payload model.RawPayload) (model.Record, error)
}

// Scheduler pages sub-queries through a Fetcher.
type Scheduler struct {
	fetcher    Fetcher
	normalizer Normalizer
	logger     *slog.Logger

	workers     int
	queueSize   int
	pageSize    int
	cap         int
	retryPolicy retry.Policy

	rate            float64
	burst           int
	minRate         float64
	penaltyStep     time.Duration
	maxPenaltyDelay time.Duration

	failureRateThreshold float64
	minRequests          int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithQueueSize sets the capacity of the sub-query queue.
func WithQueueSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithPageSize sets the number of listings requested per page.
func WithPageSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithCap sets the maximum number of records taken from one sub-query.
func WithCap(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithRetryPolicy sets the retry policy for transient fetch failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Scheduler) {
		s.retryPolicy = p
	}
}

// WithRate sets the initial request rate (requests per second) and burst.
// A rate of zero disables rate limiting until the first penalty.
func WithRate(perSecond float64, burst int) Option {
	return func(s *Scheduler) {
		s.rate = perSecond
		s.burst = burst
	}
}

// WithMinRate sets the floor for the request rate after penalties.
func WithMinRate(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond > 0 {
			s.minRate = perSecond
		}
	}
}

// WithPenaltyDelay sets the extra delay added on the first rate-limit
// penalty and its cap.
func WithPenaltyDelay(step, maxDelay time.Duration) Option {
	return func(s *Scheduler) {
		s.penaltyStep = step
		s.maxPenaltyDelay = maxDelay
	}
}

// WithFailureRate aborts the run when more than threshold of its work
// failed. While paging, the page failure rate is checked once minRequests
// page requests completed; at the end the rate over the whole run is
// checked regardless of its size. See Report.FailureRate.
func WithFailureRate(threshold float64, minRequests int) Option {
	return func(s *Scheduler) {
		s.failureRateThreshold = threshold
		s.minRequests = minRequests
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a Scheduler.
func New(fetcher Fetcher, normalizer Normalizer, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:              fetcher,
		normalizer:           normalizer,
		logger:               slog.Default(),
		workers:              DefaultWorkers,
		queueSize:            DefaultQueueSize,
		pageSize:             DefaultPageSize,
		cap:                  DefaultCap,
		retryPolicy:          retry.DefaultPolicy(),
		rate:                 DefaultRate,
		burst:                DefaultBurst,
		minRate:              DefaultMinRate,
		penaltyStep:          DefaultPenaltyStep,
		maxPenaltyDelay:      DefaultMaxPenaltyDelay,
		failureRateThreshold: DefaultFailureRateThreshold,
		minRequests:          DefaultMinRequests,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run holds the state of one Run call.
type run struct {
	*Scheduler
	throttle *Throttle
	tracker  *tracker
	records  chan<- model.Record
}

// Run pages every sub-query produced by source and passes each normalized
// record to sink. The sink is called from the calling goroutine only.
//
// Run returns a non-nil report even on failure. It fails when source yields
// an error, when a fetch reports the upstream unavailable, when the failure
// rate exceeds its threshold, or when ctx is cancelled. The failure rate is
// checked while paging once enough page requests completed, and over the
// whole run, parse failures included, when paging ends.
func (s *Scheduler) Run(ctx context.Context, source iter.Seq2[model.SubQuery, error], sink func(model.Record)) (*Report, error) {
	records := make(chan model.Record, s.workers*s.pageSize)
	r := &run{
		Scheduler: s,
		throttle:  NewThrottle(s.rate, s.burst, s.minRate, s.penaltyStep, s.maxPenaltyDelay),
		tracker:   &tracker{},
		records:   records,
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan model.PageRequest, s.queueSize)

	g.Go(func() error {
		defer close(queue)
		return r.produce(gctx, source, queue)
	})

	var workers sync.WaitGroup
	for i := range s.workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return r.work(gctx, i, queue)
		})
	}

	go func() {
		workers.Wait()
		close(records)
	}()

	for rec := range records {
		sink(rec)
		r.tracker.record()
	}

	err := g.Wait()
	report := r.tracker.finish(r.throttle.Adjustments())

	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if err != nil {
		return report, err
	}
	if err := report.checkFailureRate(s.failureRateThreshold); err != nil {
		s.logger.Error("crawl failed too often to be trusted",
			"pages", report.Pages,
			"failed", report.Failed,
			"records", report.Records,
			"parse_failures", report.ParseFailures,
		)
		return report, err
	}

	s.logger.Info("crawl finished",
		"subqueries", len(report.SubQueries),
		"requests", report.Requests,
		"pages", report.Pages,
		"failed", report.Failed,
		"records", report.Records,
		"throttle_adjustments", report.ThrottleAdjustments,
	)
	return report, nil
}

// produce moves sub-queries from source into the queue, blocking while the
// queue is full.
func (r *run) produce(ctx context.Context, source iter.Seq2[model.SubQuery, error], queue chan<- model.PageRequest) error {
	for sq, err := range source {
		if err != nil {
			return fmt.Errorf("partition: %w", err)
		}
		if sq.PossiblyTruncated {
			r.tracker.truncated(sq.ID)
		}

		req := model.PageRequest{SubQuery: sq, PageSize: r.pageSize}
		select {
		case queue <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// work pages queued sub-queries until the queue is closed.
func (r *run) work(ctx context.Context, id int, queue <-chan model.PageRequest) error {
	for req := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.pageThrough(ctx, id, req); err != nil {
			return err
		}
	}
	return nil
}

// pageThrough fetches the pages of one sub-query in order.
func (r *run) pageThrough(ctx context.Context, worker int, req model.PageRequest) error {
	sq := req.SubQuery
	outcome := SubQueryOutcome{
		ID:          sq.ID,
		ParentID:    sq.ParentID,
		Spec:        sq.Spec.String(),
		ProbedCount: sq.ProbedCount,
		Truncated:   sq.PossiblyTruncated,
	}
	defer func() { r.tracker.outcome(outcome) }()

	logger := r.logger.With("worker", worker, "subquery", sq.ID)
	logger.Debug("paging subquery", "spec", outcome.Spec, "probed", sq.ProbedCount)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := r.fetch(ctx, logger, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if model.ClassifyFetchError(err) == model.FetchUnavailable {
				return fmt.Errorf("fetch subquery %s page %d: %w", sq.ID, req.Page, err)
			}

			outcome.Partial = true
			failed, total := r.tracker.failure(req, err)
			logger.Warn("page request failed", "page", req.Page, "error", err)

			if r.failureRateThreshold > 0 && total >= r.minRequests &&
				float64(failed)/float64(total) > r.failureRateThreshold {
				return fmt.Errorf("%d of %d page requests failed: %w", failed, total, model.ErrFailureRateExceeded)
			}
			return nil
		}

		r.tracker.page()
		outcome.Pages++

		for _, payload := range page.Listings {
			if outcome.Records >= r.cap {
				break
			}
			rec, err := r.normalizer.Normalize(payload)
			if err != nil {
				r.tracker.parseFailure(req, payload.SourceURL, err)
				logger.Debug("listing rejected", "source", payload.SourceURL, "error", err)
				continue
			}
			if rec.Category == "" {
				rec.Category = sq.Spec.Category
			}

			select {
			case r.records <- rec:
				outcome.Records++
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		n := len(page.Listings)
		next := req.Next(n, page.NextCursor)
		switch {
		case page.Last, n < req.PageSize:
			return nil
		case outcome.Records >= r.cap, next.Offset >= r.cap:
			logger.Debug("subquery reached cap", "records", outcome.Records, "cap", r.cap)
			return nil
		}
		req = next
	}
}

// fetch retrieves one page, waiting on the throttle before every attempt.
func (r *run) fetch(ctx context.Context, logger *slog.Logger, req model.PageRequest) (*model.RawPage, error) {
	var page *model.RawPage
	err := retry.Do(ctx, r.retryPolicy, func(ctx context.Context) error {
		if err := r.throttle.Wait(ctx); err != nil {
			return err
		}
		r.tracker.request()

		p, err := r.fetcher.Fetch(ctx, req)
		if err != nil {
			if model.IsRateLimited(err) {
				r.throttle.Penalize()
				logger.Warn("rate limited, slowing down",
					"page", req.Page,
					"rate", r.throttle.Rate(),
					"delay", r.throttle.Delay(),
				)
			}
			return err
		}
		if p == nil {
			p = &model.RawPage{Last: true}
		}
		page = p
		return nil
	}, retry.WithOnRetry(func(a retry.Attempt) {
		logger.Debug("retrying page", "page", req.Page, "attempt", a.Number, "delay", a.Delay, "error", a.Err)
	}))

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		logger.Debug("retries exhausted", "page", req.Page, "attempts", exhausted.Attempts)
	}
	return page, err
}
