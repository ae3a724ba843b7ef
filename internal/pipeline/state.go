package pipeline

import (
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/dedup"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/scheduler"
)

// State is the data one run accumulates as it moves through the steps.
type State struct {
	// Searches are the query specs crawled, in order.
	Searches []model.QuerySpec

	// Summary is the user-visible report. It is filled in by every step
	// and returned even when the run fails.
	Summary *model.RunSummary

	// Prior is the snapshot loaded at the start of the run.
	Prior *model.Snapshot

	// Records is the deduplicated record set of this run.
	Records *dedup.Deduplicator

	// Crawl is the scheduler report covering every search.
	Crawl *scheduler.Report

	// ChangeSet and Next are produced by reconciliation.
	ChangeSet *model.ChangeSet
	Next      *model.Snapshot

	// Partial is set when requests failed, listings were rejected or
	// regions were truncated.
	Partial bool

	// Steps lists the names of the steps that ran.
	Steps []string
}

// NewState creates the state for a run starting at startedAt.
func NewState(runID string, searches []model.QuerySpec, startedAt time.Time, opts ...dedup.Option) *State {
	summary := model.NewRunSummary(runID, startedAt)
	for _, s := range searches {
		summary.Searches = append(summary.Searches, s.Name)
	}
	return &State{
		Searches: searches,
		Summary:  summary,
		Records:  dedup.New(opts...),
	}
}

// RunID returns the run identifier.
func (s *State) RunID() string {
	return s.Summary.RunID
}
