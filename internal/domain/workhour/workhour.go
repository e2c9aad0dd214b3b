package workhour

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxDescriptionLen = 500
	MaxHoursPerDay    = 24.0
)

type Entry struct {
	ID          string    `json:"id"`
	MemberID    string    `json:"memberId"`
	Date        time.Time `json:"-"` // calendar day, no time component
	Description string    `json:"description"`
	Hours       float64   `json:"hours"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DateString renders the entry date in the wire format used everywhere
// (YYYY-MM-DD).
func (e Entry) DateString() string {
	return e.Date.Format("2006-01-02")
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry

	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias(e), e.DateString()})
}

func New(memberID string, date time.Time, description string, hours float64) Entry {
	now := time.Now().UTC()

	return Entry{
		ID:          uuid.NewString(),
		MemberID:    memberID,
		Date:        date.UTC().Truncate(24 * time.Hour),
		Description: description,
		Hours:       hours,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

var (
	ErrNotFound              = errors.New("work hour entry not found")
	ErrDuplicateEntryForDate = errors.New("an entry already exists for this member and date")
	ErrValidation            = errors.New("invalid work hour entry")
	ErrForbidden             = errors.New("entry belongs to another member")
)

type CreateRequest struct {
	Date        string  `json:"date" binding:"required,datetime=2006-01-02"`
	Description string  `json:"description" binding:"required"`
	Hours       float64 `json:"hours" binding:"required"`
}

// update carries the same full payload as create
type UpdateRequest = CreateRequest

// ValidateWrite applies the write-time rules shared by create and update.
// now is injected so the January grace window is testable.
func ValidateWrite(date time.Time, hours float64, description string, now time.Time) error {
	today := now.UTC().Truncate(24 * time.Hour)
	day := date.UTC().Truncate(24 * time.Hour)

	if day.After(today) {
		return fmt.Errorf("%w: date must not be in the future", ErrValidation)
	}

	minYear := now.UTC().Year()

	// entries for the previous year stay open through January
	if now.UTC().Month() == time.January {
		minYear--
	}

	if day.Year() < minYear || day.Year() > now.UTC().Year() {
		return fmt.Errorf("%w: entries are only accepted for year %d", ErrValidation, now.UTC().Year())
	}

	if hours <= 0 || hours > MaxHoursPerDay {
		return fmt.Errorf("%w: hours must be greater than 0 and at most %v", ErrValidation, MaxHoursPerDay)
	}

	// club policy books hours in half-hour steps
	if math.Abs(hours*2-math.Round(hours*2)) > 1e-9 {
		return fmt.Errorf("%w: hours must be in steps of 0.5", ErrValidation)
	}

	if description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}

	if utf8.RuneCountInString(description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description must be at most %d characters", ErrValidation, MaxDescriptionLen)
	}

	return nil
}

// ParseDate parses the YYYY-MM-DD wire format.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse("2006-01-02", s)

	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be formatted YYYY-MM-DD", ErrValidation)
	}

	return d.UTC(), nil
}
