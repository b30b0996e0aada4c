// Package store persists snapshots, case runs and schedules in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// Open creates the database file and its tables if they do not exist.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; concurrent suite cases record through this pool.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			summary TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshot_html (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			html TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS case_runs (
			request_id TEXT PRIMARY KEY,
			url TEXT,
			steps TEXT,
			success INTEGER,
			error_message TEXT,
			start_time INTEGER,
			end_time INTEGER,
			duration_ms INTEGER,
			result_json TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			gateway TEXT,
			url TEXT,
			steps TEXT,
			interval_seconds INTEGER,
			last_run INTEGER,
			created_at INTEGER
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// SaveSnapshot stores a summarized page snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, summary string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (summary, created_at) VALUES (?, ?)`,
		summary, s.now().UnixMilli())
	return err
}

// SaveSnapshotHTML stores a raw page snapshot.
func (s *Store) SaveSnapshotHTML(ctx context.Context, html string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshot_html (html, created_at) VALUES (?, ?)`,
		html, s.now().UnixMilli())
	return err
}

// CountSnapshots returns the number of stored summarized and raw snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (summaries, raw int, err error) {
	if err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&summaries); err != nil {
		return 0, 0, err
	}
	err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot_html`).Scan(&raw)
	return summaries, raw, err
}
