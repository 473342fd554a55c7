// Package database implements the persistence layer on PostgreSQL. The core
// needs only atomic single-row updates and simple filtered reads, so queries
// stay plain and migrations run inline at startup.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = 25

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// RunMigrations creates the schema if it does not exist yet.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS presentations (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			live_started_at TIMESTAMPTZ,
			live_ended_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_presentations_owner ON presentations(owner_id)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id UUID PRIMARY KEY,
			presentation_id UUID NOT NULL REFERENCES presentations(id),
			position INT NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			config JSONB NOT NULL DEFAULT '{}',
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			live_started_at TIMESTAMPTZ,
			live_ended_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_presentation ON questions(presentation_id)`,
		`CREATE TABLE IF NOT EXISTS responses (
			id UUID PRIMARY KEY,
			question_id UUID NOT NULL REFERENCES questions(id),
			session_id TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			analysis_results JSONB,
			analysis_completed BOOLEAN NOT NULL DEFAULT FALSE,
			analysis_provider TEXT NOT NULL DEFAULT '',
			analysis_error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_question ON responses(question_id)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
