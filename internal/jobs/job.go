package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	// password reset link mail
	TypeSendPasswordReset Type = "send_password_reset"
	// yearly reminder for members short on hours; enqueued by ops tooling
	TypeSendHoursReminder Type = "send_hours_reminder"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ClaimNext result when nothing is ready to run
	ErrNoJobAvailable = errors.New("no job available")
)

type Job struct {
	ID          string
	Type        Type
	Payload     []byte
	Status      Status
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LockedAt    *time.Time
	LockedBy    *string
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateRequest struct {
	Type        Type
	Payload     []byte
	MaxAttempts int
	RunAt       time.Time
}

func New(req CreateRequest) Job {
	now := time.Now().UTC()

	maxAttempts := req.MaxAttempts

	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	runAt := req.RunAt

	if runAt.IsZero() {
		runAt = now
	}

	return Job{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Payload:     req.Payload,
		Status:      StatusPending,
		MaxAttempts: maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
