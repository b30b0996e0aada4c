package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RecordRun inserts or replaces the run with the same request ID.
func (s *Store) RecordRun(ctx context.Context, r CaseRun) error {
	query := `INSERT OR REPLACE INTO case_runs
		(request_id, url, steps, success, error_message, start_time, end_time, duration_ms, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query,
		r.RequestID, r.URL, r.Steps, boolInt(r.Success), r.ErrorMessage,
		r.StartTime.UnixMilli(), r.EndTime.UnixMilli(), r.Duration.Milliseconds(), r.ResultJSON)
	return err
}

func (s *Store) GetRun(ctx context.Context, requestID string) (*CaseRun, error) {
	query := `SELECT request_id, url, steps, success, error_message, start_time, end_time, duration_ms, result_json
		FROM case_runs WHERE request_id = ?`
	r, err := scanRun(s.DB.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]CaseRun, error) {
	query := `SELECT request_id, url, steps, success, error_message, start_time, end_time, duration_ms, result_json
		FROM case_runs ORDER BY start_time DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CaseRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*CaseRun, error) {
	var (
		r                   CaseRun
		success             int
		start, end, elapsed int64
	)
	if err := row.Scan(&r.RequestID, &r.URL, &r.Steps, &success, &r.ErrorMessage,
		&start, &end, &elapsed, &r.ResultJSON); err != nil {
		return nil, err
	}
	r.Success = success == 1
	r.StartTime = time.UnixMilli(start)
	r.EndTime = time.UnixMilli(end)
	r.Duration = time.Duration(elapsed) * time.Millisecond
	return &r, nil
}

// AddSchedule stores a new schedule. It is due immediately.
func (s *Store) AddSchedule(ctx context.Context, sc Schedule) (int64, error) {
	query := `INSERT INTO scheduled_cases (chat_id, gateway, url, steps, interval_seconds, last_run, created_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)`
	res, err := s.DB.ExecContext(ctx, query, sc.ChatID, sc.Gateway, sc.URL, sc.Steps, sc.IntervalSeconds, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DueSchedules returns schedules that never ran or whose interval has
// elapsed at now.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error) {
	query := `SELECT id, chat_id, gateway, url, steps, interval_seconds, last_run, created_at
		FROM scheduled_cases
		WHERE last_run IS NULL OR (? - last_run) >= interval_seconds * 1000
		ORDER BY id`
	return s.querySchedules(ctx, query, now.UnixMilli())
}

// ListSchedules returns the schedules of chatID, or all schedules when
// chatID is empty.
func (s *Store) ListSchedules(ctx context.Context, chatID string) ([]Schedule, error) {
	if chatID == "" {
		return s.querySchedules(ctx, `SELECT id, chat_id, gateway, url, steps, interval_seconds, last_run, created_at
			FROM scheduled_cases ORDER BY id`)
	}
	return s.querySchedules(ctx, `SELECT id, chat_id, gateway, url, steps, interval_seconds, last_run, created_at
		FROM scheduled_cases WHERE chat_id = ? ORDER BY id`, chatID)
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var (
			sc      Schedule
			lastRun sql.NullInt64
			created int64
		)
		if err := rows.Scan(&sc.ID, &sc.ChatID, &sc.Gateway, &sc.URL, &sc.Steps,
			&sc.IntervalSeconds, &lastRun, &created); err != nil {
			return nil, err
		}
		if lastRun.Valid {
			sc.LastRun = time.UnixMilli(lastRun.Int64)
		}
		sc.CreatedAt = time.UnixMilli(created)
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) MarkScheduleRun(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `UPDATE scheduled_cases SET last_run = ? WHERE id = ?`, at.UnixMilli(), id)
}

func (s *Store) DeleteSchedule(ctx context.Context, id int64) error {
	return s.execOne(ctx, `DELETE FROM scheduled_cases WHERE id = ?`, id)
}

// ClearSchedules removes every schedule of chatID and returns how many
// were removed.
func (s *Store) ClearSchedules(ctx context.Context, chatID string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM scheduled_cases WHERE chat_id = ?`, chatID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
