package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogMailer writes mails to the log instead of sending them. The default in
// dev, and the fallback when no provider is configured.
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	if log == nil {
		log = slog.Default()
	}

	return &LogMailer{log: log}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, in PasswordResetInput) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.log.InfoContext(ctx, "mail.password_reset",
		"email", in.Email,
		"name", in.Name,
		"reset_link", in.ResetLink,
	)

	return nil
}

func (m *LogMailer) SendHoursReminder(ctx context.Context, in HoursReminderInput) error {
	if err := m.simulate(ctx); err != nil {
		return err
	}

	m.log.InfoContext(ctx, "mail.hours_reminder",
		"email", in.Email,
		"year", in.Year,
		"completed", in.CompletedHours,
		"required", in.RequiredHours,
	)

	return nil
}

// MAILER_SLEEP_MS and MAILER_FAIL let local runs exercise the breaker and
// the worker retry path.
func (m *LogMailer) simulate(ctx context.Context) error {
	if msStr := os.Getenv("MAILER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)

		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if os.Getenv("MAILER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
