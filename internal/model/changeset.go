package model

import "time"

// FieldChange describes one tracked field that differs between the stored
// record and the current observation.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new,omitempty"`
}

// ChangeSet is the outcome of reconciling one run against the prior snapshot.
//
// Added, Updated and Delisted are disjoint. Every identity key of the
// current run is in exactly one of Added, Updated, or the unchanged set
// (counted by Unchanged). Delisted keys never appear in the current run.
type ChangeSet struct {
	// RunID identifies the run that produced the change set.
	RunID string `json:"run_id"`

	// Added holds keys that were not in the prior snapshot.
	Added []string `json:"added"`

	// Updated holds keys present before and now with at least one tracked
	// field differing, including listings that reappeared after delisting.
	Updated []string `json:"updated"`

	// Delisted holds keys that were active in the prior snapshot and are
	// absent from this run.
	Delisted []string `json:"delisted"`

	// Unchanged counts current keys with no tracked field differing.
	Unchanged int `json:"unchanged"`

	// Purged holds delisted keys dropped because their retention expired.
	Purged []string `json:"purged,omitempty"`

	// Changes maps each updated key to the fields that changed.
	Changes map[string][]FieldChange `json:"changes,omitempty"`

	// GeneratedAt is when reconciliation ran.
	GeneratedAt time.Time `json:"generated_at"`
}

// NewChangeSet creates an empty change set for a run.
func NewChangeSet(runID string, now time.Time) *ChangeSet {
	return &ChangeSet{
		RunID:       runID,
		Added:       make([]string, 0),
		Updated:     make([]string, 0),
		Delisted:    make([]string, 0),
		Changes:     make(map[string][]FieldChange),
		GeneratedAt: now,
	}
}

// Total returns the number of keys that changed state in this run.
func (c *ChangeSet) Total() int {
	return len(c.Added) + len(c.Updated) + len(c.Delisted)
}

// IsEmpty reports whether nothing was added, updated, or delisted.
func (c *ChangeSet) IsEmpty() bool {
	return c.Total() == 0
}
