package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		experiment_id     TEXT PRIMARY KEY,
		name              TEXT NOT NULL UNIQUE,
		artifact_location TEXT NOT NULL,
		lifecycle_stage   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id          TEXT PRIMARY KEY,
		experiment_id   TEXT NOT NULL REFERENCES experiments (experiment_id),
		user_id         TEXT NOT NULL,
		status          TEXT NOT NULL,
		start_time      BIGINT NOT NULL,
		end_time        BIGINT NOT NULL DEFAULT 0,
		lifecycle_stage TEXT NOT NULL,
		artifact_uri    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_experiment_idx ON runs (experiment_id)`,
	`CREATE TABLE IF NOT EXISTS run_params (
		run_id TEXT NOT NULL REFERENCES runs (run_id),
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS run_tags (
		run_id TEXT NOT NULL REFERENCES runs (run_id),
		key    TEXT NOT NULL,
		value  TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS run_metrics (
		run_id TEXT NOT NULL REFERENCES runs (run_id),
		key    TEXT NOT NULL,
		value  DOUBLE PRECISION NOT NULL,
		ts     BIGINT NOT NULL,
		step   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS run_metrics_run_key_idx ON run_metrics (run_id, key)`,
}

// EnsureSchema creates the tracking tables when they do not exist yet.
// Statements are idempotent, so concurrent startups are safe.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
