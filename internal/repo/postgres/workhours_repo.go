package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vereinshub/stundenhub/internal/domain/workhour"
	"github.com/vereinshub/stundenhub/internal/observability"
)

type WorkHoursRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewWorkHoursRepo(pool *pgxpool.Pool, prom *observability.Prom) *WorkHoursRepo {
	return &WorkHoursRepo{pool: pool, prom: prom}
}

func (repo *WorkHoursRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func isDateConflict(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		pgErr.ConstraintName == "work_hours_member_date_uniq"
}

// Create inserts one ledger entry. The duplicate check and the insert run in
// a single transaction; the unique constraint backs the check up against
// concurrent writers.
func (repo *WorkHoursRepo) Create(ctx context.Context, memberID string, date time.Time, description string, hours float64) (entry workhour.Entry, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var exists bool

	err = repo.observe("work_hours.create.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM work_hours
			WHERE member_id = $1 AND work_date = $2
		)`, memberID, date).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = workhour.ErrDuplicateEntryForDate
		return
	}

	entry = workhour.New(memberID, date, description, hours)

	err = repo.observe("work_hours.create.insert", func() error {
		_, e := tx.Exec(ctx, `
		INSERT INTO work_hours (id, member_id, work_date, description, hours, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, entry.ID, entry.MemberID, entry.Date, entry.Description, entry.Hours, entry.CreatedAt, entry.UpdatedAt)
		return e
	})

	if err != nil {
		if isDateConflict(err) {
			err = workhour.ErrDuplicateEntryForDate
		}

		entry = workhour.Entry{}
		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		entry = workhour.Entry{}
	}

	return
}

// Update rewrites an entry. Moving it onto a date that already has another
// entry for the same member is a conflict.
func (repo *WorkHoursRepo) Update(ctx context.Context, id, memberID string, date time.Time, description string, hours float64) (entry workhour.Entry, err error) {
	tx, err := repo.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var owner string
	var createdAt time.Time

	err = repo.observe("work_hours.update.lock_row", func() error {
		return tx.QueryRow(ctx, `
		SELECT member_id, created_at
		FROM work_hours
		WHERE id = $1
		FOR UPDATE
		`, id).Scan(&owner, &createdAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = workhour.ErrNotFound
		}

		return
	}

	if owner != memberID {
		err = workhour.ErrForbidden
		return
	}

	var exists bool

	err = repo.observe("work_hours.update.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM work_hours
			WHERE member_id = $1 AND work_date = $2 AND id <> $3
		)`, memberID, date, id).Scan(&exists)
	})

	if err != nil {
		return
	}

	if exists {
		err = workhour.ErrDuplicateEntryForDate
		return
	}

	now := time.Now().UTC()

	err = repo.observe("work_hours.update.write", func() error {
		_, e := tx.Exec(ctx, `
		UPDATE work_hours
		SET work_date = $2, description = $3, hours = $4, updated_at = $5
		WHERE id = $1
		`, id, date, description, hours, now)
		return e
	})

	if err != nil {
		if isDateConflict(err) {
			err = workhour.ErrDuplicateEntryForDate
		}

		return
	}

	err = tx.Commit(ctx)

	if err != nil {
		return
	}

	entry = workhour.Entry{
		ID:          id,
		MemberID:    memberID,
		Date:        date.UTC().Truncate(24 * time.Hour),
		Description: description,
		Hours:       hours,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}

	return
}

func (repo *WorkHoursRepo) GetByID(ctx context.Context, id string) (entry workhour.Entry, err error) {
	err = repo.observe("work_hours.get_by_id", func() error {
		return repo.pool.QueryRow(ctx, `
		SELECT id, member_id, work_date, description, hours, created_at, updated_at
		FROM work_hours
		WHERE id = $1
		`, id).Scan(&entry.ID, &entry.MemberID, &entry.Date, &entry.Description, &entry.Hours, &entry.CreatedAt, &entry.UpdatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = workhour.ErrNotFound
		}

		return
	}

	return
}

// Delete removes an entry owned by memberID. A foreign entry is reported as
// forbidden rather than silently untouched.
func (repo *WorkHoursRepo) Delete(ctx context.Context, id, memberID string) (err error) {
	var tag pgconn.CommandTag

	err = repo.observe("work_hours.delete", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx, `DELETE FROM work_hours WHERE id = $1 AND member_id = $2`, id, memberID)
		return e
	})

	if err != nil {
		return
	}

	if tag.RowsAffected() == 0 {
		var dummy string

		err = repo.observe("work_hours.delete.check_exists", func() error {
			return repo.pool.QueryRow(ctx, `SELECT id FROM work_hours WHERE id = $1`, id).Scan(&dummy)
		})

		if errors.Is(err, pgx.ErrNoRows) {
			err = workhour.ErrNotFound
			return
		}

		if err != nil {
			return
		}

		err = workhour.ErrForbidden
		return
	}

	return
}

// ListByMemberYear returns the member's ledger for one calendar year,
// ordered by date.
func (repo *WorkHoursRepo) ListByMemberYear(ctx context.Context, memberID string, year int) (entries []workhour.Entry, err error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)

	var rows pgx.Rows

	err = repo.observe("work_hours.list_by_member_year", func() error {
		var e error
		rows, e = repo.pool.Query(ctx, `
		SELECT id, member_id, work_date, description, hours, created_at, updated_at
		FROM work_hours
		WHERE member_id = $1 AND work_date >= $2 AND work_date < $3
		ORDER BY work_date ASC, id ASC
		`, memberID, from, to)
		return e
	})

	if err != nil {
		return
	}

	defer rows.Close()

	entries = make([]workhour.Entry, 0)

	for rows.Next() {
		var e workhour.Entry

		scanErr := rows.Scan(&e.ID, &e.MemberID, &e.Date, &e.Description, &e.Hours, &e.CreatedAt, &e.UpdatedAt)

		if scanErr != nil {
			err = scanErr
			return
		}

		entries = append(entries, e)
	}

	if rows.Err() != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues("work_hours.list_by_member_year", "rows_err").Inc()
		}

		err = rows.Err()
		return
	}

	return
}
