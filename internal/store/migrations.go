package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for the snapshot tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS workers (
		id          TEXT PRIMARY KEY,
		position    INTEGER NOT NULL,
		status      TEXT NOT NULL DEFAULT 'idle',
		env         TEXT NOT NULL DEFAULT '{}',
		running_job TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS queue (
		position   INTEGER PRIMARY KEY,
		executable TEXT NOT NULL,
		args       TEXT NOT NULL DEFAULT '[]',
		env        TEXT NOT NULL DEFAULT '{}',
		dir        TEXT NOT NULL DEFAULT ''
	)`,

	// Key/value metadata: last_job_id, saved_at.
	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
