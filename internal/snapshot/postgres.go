package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// PostgresStore keeps the snapshot and run history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn, verifies the connection and creates the
// schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		key TEXT PRIMARY KEY,
		record_json TEXT NOT NULL,
		checksum TEXT NOT NULL,
		last_seen_run_id TEXT NOT NULL,
		delisted BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_listings_delisted ON listings(delisted);

	CREATE TABLE IF NOT EXISTS snapshot_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		summary_json JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (*model.Snapshot, error) {
	snap := model.NewSnapshot("", time.Time{})

	err := s.pool.QueryRow(ctx, `SELECT run_id, taken_at FROM snapshot_meta WHERE id = 1`).Scan(&snap.RunID, &snap.TakenAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return snap, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load snapshot metadata: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT key, record_json, checksum, last_seen_run_id FROM listings`)
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

// Commit implements Store. Listings are bulk-loaded with COPY.
func (s *PostgresStore) Commit(ctx context.Context, snap *model.Snapshot, summary *model.RunSummary) error {
	encoded, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM listings`); err != nil {
		return fmt.Errorf("failed to clear listings: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"listings"},
		[]string{"key", "record_json", "checksum", "last_seen_run_id", "delisted"},
		pgx.CopyFromSlice(len(encoded), func(i int) ([]any, error) {
			r := encoded[i]
			return []any{r.Key, string(r.Data), r.Checksum, r.LastSeenRunID, r.Delisted}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to copy listings: %w", err)
	}

	_, err = tx.Exec(ctx, `
	INSERT INTO snapshot_meta (id, run_id, taken_at) VALUES (1, $1, $2)
	ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, taken_at = EXCLUDED.taken_at
	`, snap.RunID, snap.TakenAt)
	if err != nil {
		return fmt.Errorf("failed to update snapshot metadata: %w", err)
	}

	if summary != nil {
		if err := s.putRun(ctx, tx, summary); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// RecordRun implements Store.
func (s *PostgresStore) RecordRun(ctx context.Context, summary *model.RunSummary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin run insert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.putRun(ctx, tx, summary); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) putRun(ctx context.Context, tx pgx.Tx, summary *model.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to serialize run summary: %w", err)
	}
	_, err = tx.Exec(ctx, `
	INSERT INTO runs (run_id, started_at, status, summary_json) VALUES ($1, $2, $3, $4)
	ON CONFLICT (run_id) DO UPDATE SET status = EXCLUDED.status, summary_json = EXCLUDED.summary_json
	`, summary.RunID, summary.StartedAt, string(summary.Status), string(data))
	if err != nil {
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (*model.SnapshotEntry, error) {
	r := row{Key: key}
	var data string
	err := s.pool.QueryRow(ctx,
		`SELECT record_json, checksum, last_seen_run_id FROM listings WHERE key = $1`, key,
	).Scan(&data, &r.Checksum, &r.LastSeenRunID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	r.Data = []byte(data)
	return decodeEntry(r)
}

// Runs implements Store.
func (s *PostgresStore) Runs(ctx context.Context, limit int) ([]model.RunSummary, error) {
	query := `SELECT summary_json::text FROM runs ORDER BY started_at DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
			continue
		}
		runs = append(runs, summary)
	}
	return runs, rows.Err()
}
