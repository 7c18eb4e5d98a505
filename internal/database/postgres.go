package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Database connected", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// RunMigrations applies the schema. Statements are idempotent so re-running
// at every startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			snowflake BIGINT PRIMARY KEY,
			message_score INT NOT NULL DEFAULT 1,
			time_score INT NOT NULL DEFAULT 0,
			has_award BOOLEAN NOT NULL DEFAULT FALSE,
			is_muted BOOLEAN NOT NULL DEFAULT FALSE,
			is_banned BOOLEAN NOT NULL DEFAULT FALSE,
			sanctioned_at TIMESTAMPTZ,
			sanction_delay_periods INT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS users_has_award_idx ON users (has_award)`,
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			snowflake BIGINT NOT NULL,
			session_date DATE NOT NULL,
			duration_seconds BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (snowflake, session_date)
		)`,
		`CREATE TABLE IF NOT EXISTS voice_summary (
			snowflake BIGINT PRIMARY KEY,
			week_total BIGINT NOT NULL DEFAULT 0,
			month_total BIGINT NOT NULL DEFAULT 0,
			has_award BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS follow_rules (
			owner BIGINT NOT NULL,
			target BIGINT NOT NULL,
			interval_seconds INT NOT NULL,
			PRIMARY KEY (owner, target)
		)`,
		`CREATE INDEX IF NOT EXISTS follow_rules_target_idx ON follow_rules (target)`,
	}

	for _, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	slog.Info("Database migrations complete")
	return nil
}
