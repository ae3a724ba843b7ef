package snapshot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// ErrNotFound is returned by Store.Get for an unknown key.
var ErrNotFound = errors.New("listing not found")

// Store persists snapshots and run summaries.
//
// Commit replaces the whole snapshot in one transaction. Implementations
// must be safe for concurrent use so the lookup API can read while a run
// is in progress.
type Store interface {
	// Load returns the last committed snapshot, or an empty one for a
	// fresh store. Rows failing their integrity check yield an error
	// wrapping model.ErrSnapshotCorrupt.
	Load(ctx context.Context) (*model.Snapshot, error)

	// Commit atomically replaces the snapshot and records the run summary.
	Commit(ctx context.Context, snap *model.Snapshot, summary *model.RunSummary) error

	// RecordRun stores the summary of a run that committed nothing.
	RecordRun(ctx context.Context, summary *model.RunSummary) error

	// Get returns the stored entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*model.SnapshotEntry, error)

	// Runs returns up to limit run summaries, newest first. A limit of
	// zero or less returns all of them.
	Runs(ctx context.Context, limit int) ([]model.RunSummary, error)

	// Close releases the store's resources.
	Close() error
}

// row is the stored form of one snapshot entry.
type row struct {
	Key           string
	Data          []byte
	Checksum      string
	LastSeenRunID string
	Delisted      bool
}

// checksum returns the hex SHA3-256 digest of data.
func checksum(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encodeEntry(key string, e *model.SnapshotEntry) (row, error) {
	data, err := json.Marshal(e.Record)
	if err != nil {
		return row{}, fmt.Errorf("encode listing %s: %w", key, err)
	}
	return row{
		Key:           key,
		Data:          data,
		Checksum:      checksum(data),
		LastSeenRunID: e.LastSeenRunID,
		Delisted:      e.Record.Delisted(),
	}, nil
}

func decodeEntry(r row) (*model.SnapshotEntry, error) {
	if checksum(r.Data) != r.Checksum {
		return nil, fmt.Errorf("listing %s: checksum mismatch: %w", r.Key, model.ErrSnapshotCorrupt)
	}
	var rec model.Record
	if err := json.Unmarshal(r.Data, &rec); err != nil {
		return nil, fmt.Errorf("listing %s: %w: %w", r.Key, model.ErrSnapshotCorrupt, err)
	}
	if rec.Key != r.Key {
		return nil, fmt.Errorf("listing %s: stored record has key %q: %w", r.Key, rec.Key, model.ErrSnapshotCorrupt)
	}
	return &model.SnapshotEntry{Record: rec, LastSeenRunID: r.LastSeenRunID}, nil
}

// encodeSnapshot encodes every entry of snap in key order.
func encodeSnapshot(snap *model.Snapshot) ([]row, error) {
	rows := make([]row, 0, snap.Len())
	for _, key := range snap.Keys() {
		r, err := encodeEntry(key, snap.Get(key))
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}
