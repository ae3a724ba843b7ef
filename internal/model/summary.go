package model

import "time"

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	// RunStatusCompleted means every step ran and the snapshot was committed.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusPartial means the snapshot was committed but some requests
	// failed or some regions were possibly truncated.
	RunStatusPartial RunStatus = "partial"

	// RunStatusFailed means the run aborted and nothing was committed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled means the run was interrupted and nothing was committed.
	RunStatusCancelled RunStatus = "cancelled"
)

// RunSummary is the user-visible report of one run. It is produced even for
// failed runs so operators can see how far the run got.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Status     RunStatus `json:"status"`

	// Searches lists the names of the query specs crawled.
	Searches []string `json:"searches,omitempty"`

	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Delisted  int `json:"delisted"`
	Unchanged int `json:"unchanged"`
	Purged    int `json:"purged"`

	// Records is the number of unique records after deduplication.
	Records int `json:"records"`

	// Duplicates is the number of records collapsed by the deduplicator.
	Duplicates int `json:"duplicates"`

	SubQueries          int `json:"sub_queries"`
	Requests            int `json:"requests"`
	FailedRequests      int `json:"failed_requests"`
	ParseFailures       int `json:"parse_failures"`
	ThrottleAdjustments int `json:"throttle_adjustments"`

	// TruncatedRegions lists sub-query IDs flagged possibly truncated.
	TruncatedRegions []string `json:"truncated_regions,omitempty"`

	// Warnings collects non-fatal problems (corrupt snapshot, truncation, ...).
	Warnings []string `json:"warnings,omitempty"`

	// Error is the abort reason for failed or cancelled runs.
	Error string `json:"error,omitempty"`
}

// NewRunSummary creates a summary for a run that is starting now.
func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Status:    RunStatusFailed,
	}
}

// AddWarning appends a non-fatal warning.
func (s *RunSummary) AddWarning(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// ApplyChangeSet copies change-set counts into the summary.
func (s *RunSummary) ApplyChangeSet(cs *ChangeSet) {
	if cs == nil {
		return
	}
	s.Added = len(cs.Added)
	s.Updated = len(cs.Updated)
	s.Delisted = len(cs.Delisted)
	s.Unchanged = cs.Unchanged
	s.Purged = len(cs.Purged)
}

// Duration returns the wall time of the run, or zero if unfinished.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Succeeded reports whether the run committed a snapshot.
func (s *RunSummary) Succeeded() bool {
	return s.Status == RunStatusCompleted || s.Status == RunStatusPartial
}
