package snapshot

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// MemoryStore is an in-process Store. Entries are kept encoded so the
// integrity check runs exactly as it does for the database stores.
type MemoryStore struct {
	mu      sync.RWMutex
	runID   string
	takenAt time.Time
	rows    map[string]row
	runs    []model.RunSummary
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]row)}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := model.NewSnapshot(m.runID, m.takenAt)
	for key, r := range m.rows {
		e, err := decodeEntry(r)
		if err != nil {
			return nil, err
		}
		snap.Entries[key] = e
	}
	return snap, nil
}

// Commit implements Store.
func (m *MemoryStore) Commit(ctx context.Context, snap *model.Snapshot, summary *model.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[string]row, len(rows))
	for _, r := range rows {
		m.rows[r.Key] = r
	}
	m.runID = snap.RunID
	m.takenAt = snap.TakenAt
	if summary != nil {
		m.putRun(*summary)
	}
	return nil
}

// RecordRun implements Store.
func (m *MemoryStore) RecordRun(ctx context.Context, summary *model.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putRun(*summary)
	return nil
}

func (m *MemoryStore) putRun(s model.RunSummary) {
	for i := range m.runs {
		if m.runs[i].RunID == s.RunID {
			m.runs[i] = s
			return
		}
	}
	m.runs = append(m.runs, s)
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, key string) (*model.SnapshotEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	r, ok := m.rows[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeEntry(r)
}

// Runs implements Store.
func (m *MemoryStore) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	runs := slices.Clone(m.runs)
	m.mu.RUnlock()

	slices.SortStableFunc(runs, func(a, b model.RunSummary) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
