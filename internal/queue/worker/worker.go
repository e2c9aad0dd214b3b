package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/vereinshub/stundenhub/internal/jobs"
	"github.com/vereinshub/stundenhub/internal/notifications"
	"github.com/vereinshub/stundenhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (jobs.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	LockTTL      time.Duration
	ResetBaseURL string
}

// Worker drains the mail job queue: claim, execute through the Mailer,
// mark done or reschedule with backoff until the attempt budget runs out.
type Worker struct {
	cfg    Config
	repo   JobsRepository
	mailer notifications.Mailer
	prom   *observability.Prom
	log    *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, mailer notifications.Mailer, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.WorkerID == "" {
		host, _ := os.Hostname()
		cfg.WorkerID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 60 * time.Second
	}

	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:    cfg,
		repo:   repo,
		mailer: mailer,
		prom:   prom,
		log:    log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	staleTicker := time.NewTicker(w.cfg.LockTTL)
	defer staleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down", "worker_id", w.cfg.WorkerID)
			return nil

		case <-staleTicker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)

			if err != nil {
				w.log.Error("requeue stale jobs", "error", err)
			} else if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}

		case <-ticker.C:
			// drain until the queue is empty, then go back to polling
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					w.log.Error("process job", "error", err)
					break
				}

				if !processed {
					break
				}
			}
		}
	}
}

// ProcessOne claims and runs a single job. Returns false when nothing was
// ready.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, jobs.ErrNoJobAvailable) {
			return false, nil
		}

		return false, err
	}

	if w.prom != nil {
		w.prom.MailJobsInFlight.Inc()
		defer w.prom.MailJobsInFlight.Dec()
	}

	start := time.Now()
	err = w.execute(ctx, j)
	result := "done"

	if err != nil {
		result = w.handleFailure(ctx, j, err)
	} else if markErr := w.repo.MarkDone(ctx, j.ID); markErr != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+markErr.Error())
		result = "failed"
	}

	if w.prom != nil {
		w.prom.MailJobResults.WithLabelValues(string(j.Type), result).Inc()
		w.prom.MailJobDuration.WithLabelValues(string(j.Type), result).Observe(time.Since(start).Seconds())
	}

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j jobs.Job) error {
	switch j.Type {
	case jobs.TypeSendPasswordReset:
		p, err := jobs.DecodePasswordReset(j.Payload)

		if err != nil {
			return err
		}

		return w.mailer.SendPasswordReset(ctx, notifications.PasswordResetInput{
			Email:     p.Email,
			Name:      p.Name,
			ResetLink: w.resetLink(p.Token),
		})

	case jobs.TypeSendHoursReminder:
		p, err := jobs.DecodeHoursReminder(j.Payload)

		if err != nil {
			return err
		}

		return w.mailer.SendHoursReminder(ctx, notifications.HoursReminderInput{
			Email:          p.Email,
			Name:           p.Name,
			Year:           p.Year,
			CompletedHours: p.CompletedHours,
			RequiredHours:  p.RequiredHours,
		})

	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
}

// handleFailure retries with backoff while attempts remain, otherwise the
// job lands in failed for operators to inspect.
func (w *Worker) handleFailure(ctx context.Context, j jobs.Job, cause error) string {
	if j.Attempts+1 >= j.MaxAttempts {
		w.log.Error("job exhausted attempts", "job_id", j.ID, "type", j.Type, "error", cause)

		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.log.Error("mark failed", "job_id", j.ID, "error", err)
		}

		return "failed"
	}

	delay := ExponentialBackoff(j.Attempts)

	w.log.Warn("job failed, rescheduling", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1, "delay", delay, "error", cause)

	if err := w.repo.Reschedule(ctx, j.ID, time.Now().UTC().Add(delay), cause.Error()); err != nil {
		w.log.Error("reschedule", "job_id", j.ID, "error", err)
		return "failed"
	}

	return "retry"
}

func (w *Worker) resetLink(token string) string {
	return w.cfg.ResetBaseURL + "?token=" + url.QueryEscape(token)
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()

	return w.ready
}
