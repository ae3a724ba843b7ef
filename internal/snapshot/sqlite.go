package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// SQLiteFileName is the database file created inside the data directory.
const SQLiteFileName = "zoopla-scraper.db"

// SQLiteStore keeps the snapshot and run history in one SQLite file.
type SQLiteStore struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures SQLiteStore behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so lookups are not blocked by
	// a commit in progress.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// OpenSQLite opens or creates the store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func OpenSQLite(dbDir string, opts Options) (*SQLiteStore, error) {
	dbPath := filepath.Join(dbDir, SQLiteFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *SQLiteStore) createTables() error {
	schema := `
	-- One row per identity key of the current snapshot
	CREATE TABLE IF NOT EXISTS listings (
		key TEXT PRIMARY KEY,
		record_json TEXT NOT NULL,
		checksum TEXT NOT NULL,
		last_seen_run_id TEXT NOT NULL,
		delisted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_listings_delisted ON listings(delisted);

	-- Identifies the run that produced the stored snapshot
	CREATE TABLE IF NOT EXISTS snapshot_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT NOT NULL,
		taken_at TEXT NOT NULL
	);

	-- Run summaries, committed or not
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		status TEXT NOT NULL,
		summary_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := model.NewSnapshot("", time.Time{})

	var takenAt string
	err := s.db.QueryRowContext(ctx, `SELECT run_id, taken_at FROM snapshot_meta WHERE id = 1`).Scan(&snap.RunID, &takenAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load snapshot metadata: %w", err)
	}
	snap.TakenAt = parseTimestamp(takenAt)

	rows, err := s.db.QueryContext(ctx, `
	SELECT key, record_json, checksum, last_seen_run_id
	FROM listings
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r row
		var data string
		if err := rows.Scan(&r.Key, &data, &r.Checksum, &r.LastSeenRunID); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		r.Data = []byte(data)
		e, err := decodeEntry(r)
		if err != nil {
			return nil, err
		}
		snap.Entries[r.Key] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	return snap, nil
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, snap *model.Snapshot, summary *model.RunSummary) error {
	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("failed to clear listings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO listings (key, record_json, checksum, last_seen_run_id, delisted)
	VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare listing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range encoded {
		if _, err := stmt.ExecContext(ctx, r.Key, string(r.Data), r.Checksum, r.LastSeenRunID, r.Delisted); err != nil {
			return fmt.Errorf("failed to insert listing %s: %w", r.Key, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO snapshot_meta (id, run_id, taken_at) VALUES (1, ?, ?)
	ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id, taken_at = excluded.taken_at
	`, snap.RunID, snap.TakenAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to update snapshot metadata: %w", err)
	}

	if summary != nil {
		if err := putRun(ctx, tx, summary); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// RecordRun implements Store.
func (s *SQLiteStore) RecordRun(ctx context.Context, summary *model.RunSummary) error {
	return putRun(ctx, s.db, summary)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRun(ctx context.Context, db execer, summary *model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}
	_, err = db.ExecContext(ctx, `
	INSERT INTO runs (run_id, started_at, status, summary_json) VALUES (?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		status = excluded.status,
		summary_json = excluded.summary_json
	`, summary.RunID, summary.StartedAt.UTC().Format(timeLayout), string(summary.Status), string(data))
	if err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.SnapshotEntry, error) {
	r := row{Key: key}
	var data string
	err := s.db.QueryRowContext(ctx, `
	SELECT record_json, checksum, last_seen_run_id FROM listings WHERE key = ?
	`, key).Scan(&data, &r.Checksum, &r.LastSeenRunID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	r.Data = []byte(data)
	return decodeEntry(r)
}

// Runs implements Store.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT summary_json FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var summary model.RunSummary
		if err := json.Unmarshal([]byte(data), &summary); err != nil {
			continue // Skip malformed summaries
		}
		runs = append(runs, summary)
	}
	return runs, rows.Err()
}

// timeLayout is a fixed-width UTC layout so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
