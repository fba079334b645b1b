package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] brings the schema from version i to i+1. Statements use
// IF NOT EXISTS so a partially applied step can be re-run.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			job_name     TEXT    NOT NULL,
			started_at   TEXT    NOT NULL,
			finished_at  TEXT    NOT NULL,
			outcome      TEXT    NOT NULL,
			failure_kind TEXT    NOT NULL DEFAULT '',
			failure_code INTEGER NOT NULL DEFAULT 0,
			failure_msg  TEXT    NOT NULL DEFAULT '',
			dry_run      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_job_started ON runs(job_name, started_at)`,
		`CREATE TABLE IF NOT EXISTS git_checkouts (
			repo       TEXT PRIMARY KEY,
			depth      INTEGER NOT NULL,
			refspec    TEXT    NOT NULL,
			remote     TEXT    NOT NULL,
			refs       TEXT    NOT NULL DEFAULT '[]',
			fetched_at TEXT    NOT NULL
		)`,
	},
}

// schemaVersion is the version produced by applying every migration.
var schemaVersion = len(migrations)

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("sqlite: database schema version %d is newer than supported version %d", current, schemaVersion)
	}

	for v := current; v < schemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: migrate to v%d: %w\nstatement: %s", v+1, err, stmt)
			}
		}
		if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", v+1); err != nil {
			return fmt.Errorf("sqlite: record schema version: %w", err)
		}
	}
	return nil
}
