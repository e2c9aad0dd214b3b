package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vereinshub/stundenhub/internal/config"
	"github.com/vereinshub/stundenhub/internal/security"
)

// EnsureBootstrapCredential seeds one login so a fresh deployment is
// reachable before anyone has run the reset flow. Idempotent: an existing
// row is never overwritten.
func EnsureBootstrapCredential(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapEmail))

	var dummy string

	err := pool.QueryRow(ctx, `SELECT email FROM credentials WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.BootstrapPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx, `
		INSERT INTO credentials (email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (email) DO NOTHING
	`, email, hash, now)

	return err
}
