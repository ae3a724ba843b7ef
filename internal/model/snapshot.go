package model

import (
	"sort"
	"time"
)

// SnapshotEntry is the last-known state of one identity.
type SnapshotEntry struct {
	Record        Record `json:"record"`
	LastSeenRunID string `json:"last_seen_run_id"`
}

// Snapshot maps identity keys to their last-known state.
//
// A snapshot is owned by the snapshot store and replaced wholesale at the end
// of a completed run; it is never mutated in place while a run is underway.
type Snapshot struct {
	// RunID is the run that produced this snapshot. Empty for a fresh store.
	RunID string `json:"run_id,omitempty"`

	// TakenAt is when the snapshot was built.
	TakenAt time.Time `json:"taken_at,omitzero"`

	// Entries holds the state per identity key.
	Entries map[string]*SnapshotEntry `json:"entries"`
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot(runID string, takenAt time.Time) *Snapshot {
	return &Snapshot{
		RunID:   runID,
		TakenAt: takenAt,
		Entries: make(map[string]*SnapshotEntry),
	}
}

// Get returns the entry for key, or nil when absent.
func (s *Snapshot) Get(key string) *SnapshotEntry {
	if s == nil {
		return nil
	}
	return s.Entries[key]
}

// Len returns the number of entries, delisted ones included.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// ActiveCount returns the number of entries that are not delisted.
func (s *Snapshot) ActiveCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, e := range s.Entries {
		if !e.Record.Delisted() {
			n++
		}
	}
	return n
}

// Keys returns all keys in sorted order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.Entries))
	for k := range s.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
