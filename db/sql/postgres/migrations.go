package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates every table the services use. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS cache_logs (
		id         BIGSERIAL PRIMARY KEY,
		key        TEXT NOT NULL,
		action     TEXT NOT NULL,
		ts         BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS cache_logs_key_idx ON cache_logs (key)`,
	`CREATE TABLE IF NOT EXISTS score_results (
		id             BIGSERIAL PRIMARY KEY,
		question       TEXT NOT NULL,
		answer_yahoo   TEXT NOT NULL,
		answer_llm     TEXT NOT NULL,
		quality_score  DOUBLE PRECISION NOT NULL,
		times_querried INTEGER NOT NULL DEFAULT 1,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS score_results_question_idx ON score_results (question, id DESC)`,
	`CREATE TABLE IF NOT EXISTS yahoo_data (
		id             BIGSERIAL PRIMARY KEY,
		question_title TEXT NOT NULL,
		best_answer    TEXT NOT NULL
	)`,
}

// ApplyMigrations executes the provided SQL statements in order within the given context.
func ApplyMigrations(ctx context.Context, db *sql.DB, statements ...string) error {
	if db == nil {
		return fmt.Errorf("postgres: db is nil")
	}
	for i, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate statement %d: %w", i, translateError(err))
		}
	}
	return nil
}
