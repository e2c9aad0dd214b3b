package notifications

import "context"

type PasswordResetInput struct {
	Email     string
	Name      string
	ResetLink string
}

type HoursReminderInput struct {
	Email          string
	Name           string
	Year           int
	CompletedHours float64
	RequiredHours  float64
}

// Mailer is the outbound mail collaborator. Actual SMTP delivery lives
// outside this service; deployments plug a provider in here.
type Mailer interface {
	SendPasswordReset(ctx context.Context, input PasswordResetInput) error
	SendHoursReminder(ctx context.Context, input HoursReminderInput) error
}
