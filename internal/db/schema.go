package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables this service owns. Idempotent; runs at
// startup so a fresh database is usable without a migration step.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			email         TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS work_hours (
			id          TEXT PRIMARY KEY,
			member_id   TEXT NOT NULL,
			work_date   DATE NOT NULL,
			description TEXT NOT NULL,
			hours       DOUBLE PRECISION NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			CONSTRAINT work_hours_member_date_uniq UNIQUE (member_id, work_date)
		)`,
		`CREATE INDEX IF NOT EXISTS work_hours_member_date_idx
			ON work_hours (member_id, work_date)`,
		`CREATE TABLE IF NOT EXISTS mail_jobs (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			payload      BYTEA NOT NULL,
			status       TEXT NOT NULL,
			attempts     INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			run_at       TIMESTAMPTZ NOT NULL,
			locked_at    TIMESTAMPTZ,
			locked_by    TEXT,
			last_error   TEXT,
			created_at   TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS mail_jobs_claim_idx
			ON mail_jobs (status, run_at)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
