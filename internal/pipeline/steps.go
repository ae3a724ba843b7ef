package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/publish"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/scheduler"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/snapshot"
)

// Partitioner produces the sub-queries covering a search.
type Partitioner interface {
	Partition(ctx context.Context, spec model.QuerySpec) iter.Seq2[model.SubQuery, error]
}

// Crawler pages a stream of sub-queries and hands records to sink.
type Crawler interface {
	Run(ctx context.Context, source iter.Seq2[model.SubQuery, error], sink func(model.Record)) (*scheduler.Report, error)
}

// LoadStep loads the prior snapshot.
//
// A corrupt snapshot does not fail the run: the run proceeds against an
// empty prior snapshot, so every current record is reported as added, and
// the problem is surfaced as a warning.
type LoadStep struct {
	store  snapshot.Store
	logger *slog.Logger
}

// NewLoadStep creates a LoadStep reading from store.
func NewLoadStep(store snapshot.Store, logger *slog.Logger) *LoadStep {
	return &LoadStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *LoadStep) Name() string {
	return "load"
}

// Do executes the load step.
func (s *LoadStep) Do(ctx context.Context, state *State) error {
	prior, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, model.ErrSnapshotCorrupt):
		s.logger.Warn("prior snapshot is corrupt, treating all listings as new", "error", err)
		state.Summary.AddWarning("prior snapshot discarded: " + err.Error())
		state.Prior = model.NewSnapshot("", time.Time{})
		return nil
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	}

	s.logger.Info("prior snapshot loaded",
		"run", prior.RunID,
		"entries", prior.Len(),
		"active", prior.ActiveCount(),
	)
	state.Prior = prior
	return nil
}

// CrawlStep partitions and pages every search, collecting deduplicated
// records into the state.
type CrawlStep struct {
	partitioner Partitioner
	crawler     Crawler
	logger      *slog.Logger
}

// NewCrawlStep creates a CrawlStep.
func NewCrawlStep(partitioner Partitioner, crawler Crawler, logger *slog.Logger) *CrawlStep {
	return &CrawlStep{partitioner: partitioner, crawler: crawler, logger: logger}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step. All searches are paged by a single crawler
// run, so its throttle and failure accounting span the whole run.
func (s *CrawlStep) Do(ctx context.Context, state *State) error {
	summary := state.Summary
	defer func() {
		stats := state.Records.Stats()
		summary.Records = state.Records.Len()
		summary.Duplicates = stats.Duplicates
	}()

	report, err := s.crawler.Run(ctx, s.subQueries(ctx, state.Searches), func(rec model.Record) {
		state.Records.Add(rec)
	})
	if report != nil {
		state.Crawl = report
		summary.SubQueries = len(report.SubQueries)
		summary.Requests = report.Requests
		summary.FailedRequests = report.Failed
		summary.ParseFailures = report.ParseFailures
		summary.ThrottleAdjustments = report.ThrottleAdjustments
		summary.TruncatedRegions = report.Truncated
		if report.Failed > 0 || report.ParseFailures > 0 || len(report.Truncated) > 0 {
			state.Partial = true
		}
	}
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if n := len(summary.TruncatedRegions); n > 0 {
		summary.AddWarning(fmt.Sprintf("%d regions still exceeded the result cap and may be incomplete", n))
	}
	if n := summary.FailedRequests; n > 0 {
		summary.AddWarning(fmt.Sprintf("%d page requests failed; affected regions were crawled partially", n))
	}
	if n := summary.ParseFailures; n > 0 {
		summary.AddWarning(fmt.Sprintf("%d listings could not be parsed and were skipped", n))
	}
	if n := state.Records.Stats().Unkeyed; n > 0 {
		summary.AddWarning(fmt.Sprintf("%d records had no stable identity and were dropped", n))
	}
	return nil
}

// subQueries chains the partitions of searches, in order, into one
// sequence. Sub-query IDs are prefixed with the search name so they stay
// unique across searches.
func (s *CrawlStep) subQueries(ctx context.Context, searches []model.QuerySpec) iter.Seq2[model.SubQuery, error] {
	return func(yield func(model.SubQuery, error) bool) {
		for _, spec := range searches {
			s.logger.Info("crawling search", "search", spec.Name, "spec", spec.String())

			for sq, err := range s.partitioner.Partition(ctx, spec) {
				if err != nil {
					yield(sq, fmt.Errorf("search %q: %w", spec.Name, err))
					return
				}
				sq.ID = prefixed(spec.Name, sq.ID)
				if sq.ParentID != "" {
					sq.ParentID = prefixed(spec.Name, sq.ParentID)
				}
				if !yield(sq, nil) {
					return
				}
			}
		}
	}
}

func prefixed(search, id string) string {
	if search == "" {
		return id
	}
	return search + ":" + id
}

// ReconcileStep diffs the run's records against the prior snapshot.
type ReconcileStep struct {
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewReconcileStep creates a ReconcileStep.
func NewReconcileStep(retention time.Duration, now func() time.Time, logger *slog.Logger) *ReconcileStep {
	return &ReconcileStep{retention: retention, now: now, logger: logger}
}

// Name returns the step name.
func (s *ReconcileStep) Name() string {
	return "reconcile"
}

// Do executes the reconcile step.
func (s *ReconcileStep) Do(_ context.Context, state *State) error {
	cs, next := snapshot.Reconcile(state.Records.Records(), state.Prior, snapshot.ReconcileOptions{
		RunID:     state.RunID(),
		Now:       s.now(),
		Retention: s.retention,
	})
	state.ChangeSet = cs
	state.Next = next
	state.Summary.ApplyChangeSet(cs)

	s.logger.Info("reconciled",
		"added", len(cs.Added),
		"updated", len(cs.Updated),
		"delisted", len(cs.Delisted),
		"unchanged", cs.Unchanged,
		"purged", len(cs.Purged),
	)
	return nil
}

// CommitStep replaces the stored snapshot with the reconciled one.
type CommitStep struct {
	store  snapshot.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewCommitStep creates a CommitStep.
func NewCommitStep(store snapshot.Store, now func() time.Time, logger *slog.Logger) *CommitStep {
	return &CommitStep{store: store, now: now, logger: logger}
}

// Name returns the step name.
func (s *CommitStep) Name() string {
	return "commit"
}

// Do executes the commit step.
func (s *CommitStep) Do(ctx context.Context, state *State) error {
	if state.Next == nil {
		return errors.New("commit: nothing reconciled")
	}

	summary := state.Summary
	summary.Status = model.RunStatusCompleted
	if state.Partial {
		summary.Status = model.RunStatusPartial
	}
	summary.FinishedAt = s.now()

	if err := s.store.Commit(ctx, state.Next, summary); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Info("snapshot committed", "run", state.RunID(), "entries", state.Next.Len(), "status", summary.Status)
	return nil
}

// PublishStep announces the committed change set. A publish failure is
// recorded as a warning; the snapshot is already committed.
type PublishStep struct {
	publisher publish.Publisher
	logger    *slog.Logger
}

// NewPublishStep creates a PublishStep. A nil publisher publishes nothing.
func NewPublishStep(publisher publish.Publisher, logger *slog.Logger) *PublishStep {
	if publisher == nil {
		publisher = publish.Noop{}
	}
	return &PublishStep{publisher: publisher, logger: logger}
}

// Name returns the step name.
func (s *PublishStep) Name() string {
	return "publish"
}

// Do executes the publish step.
func (s *PublishStep) Do(ctx context.Context, state *State) error {
	if err := s.publisher.Publish(ctx, state.ChangeSet, state.Summary); err != nil {
		s.logger.Warn("failed to publish change set", "error", err)
		state.Summary.AddWarning("change set not published: " + err.Error())
	}
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Retention is how long delisted listings are kept.
	Retention time.Duration

	// Clock returns the current time.
	Clock func() time.Time

	// Publisher announces committed change sets. Nil disables publishing.
	Publisher publish.Publisher
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineRetention sets how long delisted listings are kept.
func WithPipelineRetention(d time.Duration) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Retention = d
	}
}

// WithPipelineClock sets the clock used to stamp the run.
func WithPipelineClock(now func() time.Time) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Clock = now
	}
}

// WithPipelinePublisher sets the change-set publisher.
func WithPipelinePublisher(p publish.Publisher) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Publisher = p
	}
}

// DefaultPipeline creates the standard load, crawl, reconcile, commit and
// publish pipeline.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineRetention, etc).
func DefaultPipeline(store snapshot.Store, partitioner Partitioner, crawler Crawler, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		Retention: snapshot.DefaultRetention,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewLoadStep(store, p.logger),
		NewCrawlStep(partitioner, crawler, p.logger),
		NewReconcileStep(cfg.Retention, cfg.Clock, p.logger),
		NewCommitStep(store, cfg.Clock, p.logger),
		NewPublishStep(cfg.Publisher, p.logger),
	)

	return p
}
