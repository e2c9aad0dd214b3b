package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/observability"
)

type CredentialsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewCredentialsRepo(pool *pgxpool.Pool, prom *observability.Prom) *CredentialsRepo {
	return &CredentialsRepo{pool: pool, prom: prom}
}

func (repo *CredentialsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *CredentialsRepo) GetByEmail(ctx context.Context, email string) (rec credentials.Record, err error) {
	err = repo.observe("credentials.get_by_email", func() error {
		return repo.pool.QueryRow(ctx, `
		SELECT email, password_hash, created_at, updated_at
		FROM credentials
		WHERE email = $1
		`, email).Scan(&rec.Email, &rec.PasswordHash, &rec.CreatedAt, &rec.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = credentials.ErrNotFound
		}

		return
	}

	return
}

// UpsertPassword inserts the credential row when the email has never set a
// secret (member existed only in the directory) and replaces the hash
// otherwise.
func (repo *CredentialsRepo) UpsertPassword(ctx context.Context, email, hash string) error {
	now := time.Now().UTC()

	return repo.observe("credentials.upsert_password", func() error {
		_, err := repo.pool.Exec(ctx, `
		INSERT INTO credentials (email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (email)
		DO UPDATE SET password_hash = EXCLUDED.password_hash,
		              updated_at    = EXCLUDED.updated_at
		`, email, hash, now)

		return err
	})
}
