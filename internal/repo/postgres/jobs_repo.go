package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vereinshub/stundenhub/internal/jobs"
	"github.com/vereinshub/stundenhub/internal/observability"
)

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func (repo *JobsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (repo *JobsRepo) Create(ctx context.Context, req jobs.CreateRequest) (jobs.Job, error) {
	j := jobs.New(req)

	err := repo.observe("mail_jobs.create", func() error {
		_, e := repo.pool.Exec(ctx, `
		INSERT INTO mail_jobs (id, type, payload, status, attempts, max_attempts, run_at, locked_at, locked_by, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, j.ID, string(j.Type), j.Payload, string(j.Status), j.Attempts, j.MaxAttempts, j.RunAt, j.LockedAt, j.LockedBy, j.LastError, j.CreatedAt, j.UpdatedAt)
		return e
	})

	if err != nil {
		return jobs.Job{}, err
	}

	return j, nil
}

// ClaimNext moves the oldest runnable job to processing under this worker.
// SKIP LOCKED keeps concurrent workers from fighting over the same row.
func (repo *JobsRepo) ClaimNext(ctx context.Context, workerID string) (jobs.Job, error) {
	var j jobs.Job
	var jobType, status string

	err := repo.observe("mail_jobs.claim_next", func() error {
		return repo.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id
			FROM mail_jobs
			WHERE status = 'pending'
			  AND run_at <= NOW()
			  AND attempts < max_attempts
			ORDER BY run_at ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE mail_jobs
		SET status = 'processing',
		    locked_at = NOW(),
		    locked_by = $1,
		    updated_at = NOW()
		WHERE id = (SELECT id FROM next)
		RETURNING id, type, payload, status, attempts, max_attempts,
		          run_at, locked_at, locked_by, last_error, created_at, updated_at
		`, workerID).Scan(
			&j.ID, &jobType, &j.Payload, &status,
			&j.Attempts, &j.MaxAttempts,
			&j.RunAt, &j.LockedAt, &j.LockedBy,
			&j.LastError, &j.CreatedAt, &j.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNoJobAvailable
		}

		return jobs.Job{}, err
	}

	j.Type = jobs.Type(jobType)
	j.Status = jobs.Status(status)

	return j, nil
}

func (repo *JobsRepo) MarkDone(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := repo.observe("mail_jobs.mark_done", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'done',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
		`, id)
		return e
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}

	return nil
}

func (repo *JobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	var tag pgconn.CommandTag

	err := repo.observe("mail_jobs.mark_failed", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'failed',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
		`, id, errMsg)
		return e
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}

	return nil
}

// Reschedule puts a job back on the queue with a later run time, counting
// the failed attempt.
func (repo *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	var tag pgconn.CommandTag

	err := repo.observe("mail_jobs.reschedule", func() error {
		var e error
		tag, e = repo.pool.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
		`, id, runAt, errMsg)
		return e
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return jobs.ErrJobNotFound
	}

	return nil
}

// RequeueStaleProcessing recovers jobs whose worker died mid-flight.
func (repo *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())

	if secs <= 0 {
		secs = 30
	}

	var rows int64

	err := repo.observe("mail_jobs.requeue_stale", func() error {
		tag, e := repo.pool.Exec(ctx, `
		UPDATE mail_jobs
		SET status = 'pending',
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND locked_at IS NOT NULL
		  AND locked_at < NOW() - ($1 * INTERVAL '1 second')
		`, secs)

		if e != nil {
			return e
		}

		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}
