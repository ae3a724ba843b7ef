package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/dedup"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/snapshot"
)

// Runner executes a pipeline for one run and records its summary.
type Runner struct {
	pipeline *Pipeline
	store    snapshot.Store
	newID    func() string
	now      func() time.Time
	dedup    []dedup.Option
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunID sets the run identifier generator.
func WithRunID(newID func() string) RunnerOption {
	return func(r *Runner) {
		r.newID = newID
	}
}

// WithRunnerClock sets the clock used for the run's start and finish.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// WithDedupOptions configures the run's deduplicator.
func WithDedupOptions(opts ...dedup.Option) RunnerOption {
	return func(r *Runner) {
		r.dedup = append(r.dedup, opts...)
	}
}

// NewRunner creates a Runner. store receives the summary of runs that fail
// before committing.
func NewRunner(p *Pipeline, store snapshot.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline: p,
		store:    store,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one run over searches. The returned state is never nil and
// its summary describes the outcome whether or not err is nil.
func (r *Runner) Run(ctx context.Context, searches []model.QuerySpec) (*State, error) {
	logger := r.pipeline.Logger()
	state := NewState(r.newID(), searches, r.now(), append([]dedup.Option{dedup.WithLogger(logger)}, r.dedup...)...)

	logger.Info("run started", "run", state.RunID(), "searches", len(searches))
	err := r.pipeline.Execute(ctx, state)
	if state.Summary.FinishedAt.IsZero() || err != nil {
		state.Summary.FinishedAt = r.now()
	}

	// The summary is recorded after a cancelled run too.
	if recErr := r.store.RecordRun(context.WithoutCancel(ctx), state.Summary); recErr != nil {
		logger.Error("failed to record run summary", "run", state.RunID(), "error", recErr)
	}

	if err != nil {
		logger.Error("run failed", "run", state.RunID(), "status", state.Summary.Status, "error", err)
		return state, err
	}
	logger.Info("run finished",
		"run", state.RunID(),
		"status", state.Summary.Status,
		"duration", state.Summary.Duration(),
	)
	return state, nil
}
