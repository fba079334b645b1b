package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/devwarm/internal/store"
	"github.com/flemzord/devwarm/pkg/job"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

// RecordRun implements store.RunStore.
func (s *Store) RecordRun(ctx context.Context, r job.RunResult) error {
	var (
		kind string
		code int
		msg  string
	)
	if r.Failure != nil {
		kind, code, msg = string(r.Failure.Kind), r.Failure.Code, r.Failure.Message
	}
	dry := 0
	if r.DryRun {
		dry = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, job_name, started_at, finished_at, outcome, failure_kind, failure_code, failure_msg, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobName, formatTime(r.StartedAt), formatTime(r.FinishedAt), string(r.Outcome),
		kind, code, msg, dry,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record run %s: %w", r.ID, err)
	}
	return nil
}

// LastRun implements store.RunStore.
func (s *Store) LastRun(ctx context.Context, jobName string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at FROM runs
		WHERE job_name = ? AND dry_run = 0 AND outcome NOT IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1`,
		jobName, string(job.OutcomeSkippedNotDue), string(job.OutcomeSkippedAlreadyRunning),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: last run of %s: %w", jobName, err)
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// ListRuns implements store.RunStore.
func (s *Store) ListRuns(ctx context.Context, f store.Filter) ([]job.RunResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, started_at, finished_at, outcome, failure_kind, failure_code, failure_msg, dry_run
		FROM runs
		WHERE (? = '' OR job_name = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`,
		f.Job, f.Job, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []job.RunResult
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list runs rows: %w", err)
	}
	return out, nil
}

func scanRun(rows *sql.Rows) (job.RunResult, error) {
	var (
		r                 job.RunResult
		started, finished string
		outcome, kind     string
		code, dry         int
		msg               string
	)
	if err := rows.Scan(&r.ID, &r.JobName, &started, &finished, &outcome, &kind, &code, &msg, &dry); err != nil {
		return job.RunResult{}, fmt.Errorf("sqlite: scan run: %w", err)
	}

	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return job.RunResult{}, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return job.RunResult{}, err
	}
	r.Outcome = job.Outcome(outcome)
	r.DryRun = dry != 0
	if kind != "" {
		r.Failure = &job.Failure{Kind: job.FailureKind(kind), Code: code, Message: msg}
	}
	return r, nil
}
