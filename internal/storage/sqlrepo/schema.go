package sqlrepo

import (
	"context"
	"fmt"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case "pgx", "postgres":
		return dialectPostgres, nil
	case "sqlite", "sqlite3":
		return dialectSQLite, nil
	default:
		return 0, fmt.Errorf("unsupported sql driver: %q", driverName)
	}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id                UUID PRIMARY KEY,
		correlation_id    UUID NOT NULL,
		status            TEXT NOT NULL,
		status_message    TEXT NOT NULL,
		progress_percent  INTEGER NOT NULL,
		request_json      JSONB NOT NULL,
		script_json       JSONB,
		output_video_path TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		completed_at      TIMESTAMPTZ,
		version           BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS broadcast_jobs_created_at_idx ON broadcast_jobs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS generated_assets (
		id               UUID PRIMARY KEY,
		broadcast_id     UUID NOT NULL REFERENCES broadcast_jobs (id) ON DELETE CASCADE,
		segment_number   INTEGER NOT NULL,
		section          TEXT NOT NULL,
		scene_index      INTEGER NOT NULL,
		asset_type       TEXT NOT NULL,
		file_path        TEXT NOT NULL,
		duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
		content_hash     TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		UNIQUE (broadcast_id, segment_number, section, scene_index, asset_type)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id           BIGSERIAL PRIMARY KEY,
		event_id     TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload      JSONB NOT NULL,
		occurred_at  TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE processed_at IS NULL`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS broadcast_jobs (
		id                TEXT PRIMARY KEY,
		correlation_id    TEXT NOT NULL,
		status            TEXT NOT NULL,
		status_message    TEXT NOT NULL,
		progress_percent  INTEGER NOT NULL,
		request_json      TEXT NOT NULL,
		script_json       TEXT,
		output_video_path TEXT NOT NULL DEFAULT '',
		error_message     TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMP NOT NULL,
		updated_at        TIMESTAMP NOT NULL,
		completed_at      TIMESTAMP,
		version           INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS broadcast_jobs_created_at_idx ON broadcast_jobs (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS generated_assets (
		id               TEXT PRIMARY KEY,
		broadcast_id     TEXT NOT NULL REFERENCES broadcast_jobs (id) ON DELETE CASCADE,
		segment_number   INTEGER NOT NULL,
		section          TEXT NOT NULL,
		scene_index      INTEGER NOT NULL,
		asset_type       TEXT NOT NULL,
		file_path        TEXT NOT NULL,
		duration_seconds REAL NOT NULL DEFAULT 0,
		content_hash     TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMP NOT NULL,
		UNIQUE (broadcast_id, segment_number, section, scene_index, asset_type)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id     TEXT NOT NULL,
		event_type   TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload      TEXT NOT NULL,
		occurred_at  TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	)`,
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == dialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
