package jobs

import (
	"encoding/json"
	"fmt"
)

// PasswordResetPayload carries everything the worker needs to send a reset
// mail without further lookups.
type PasswordResetPayload struct {
	Email     string `json:"email"`
	ProfileID string `json:"profileId"`
	Token     string `json:"token"`
	Name      string `json:"name,omitempty"`
}

func EncodePasswordReset(p PasswordResetPayload) ([]byte, error) {
	if p.Email == "" || p.Token == "" {
		return nil, fmt.Errorf("password reset payload missing email or token")
	}

	return json.Marshal(p)
}

func DecodePasswordReset(raw []byte) (PasswordResetPayload, error) {
	var p PasswordResetPayload

	if err := json.Unmarshal(raw, &p); err != nil {
		return PasswordResetPayload{}, fmt.Errorf("decode password reset payload: %w", err)
	}

	if p.Email == "" || p.Token == "" {
		return PasswordResetPayload{}, fmt.Errorf("password reset payload missing email or token")
	}

	return p, nil
}

// HoursReminderPayload is the reminder mail payload.
type HoursReminderPayload struct {
	Email          string  `json:"email"`
	ProfileID      string  `json:"profileId"`
	Name           string  `json:"name,omitempty"`
	Year           int     `json:"year"`
	CompletedHours float64 `json:"completedHours"`
	RequiredHours  float64 `json:"requiredHours"`
}

func EncodeHoursReminder(p HoursReminderPayload) ([]byte, error) {
	if p.Email == "" || p.Year == 0 {
		return nil, fmt.Errorf("hours reminder payload missing email or year")
	}

	return json.Marshal(p)
}

func DecodeHoursReminder(raw []byte) (HoursReminderPayload, error) {
	var p HoursReminderPayload

	if err := json.Unmarshal(raw, &p); err != nil {
		return HoursReminderPayload{}, fmt.Errorf("decode hours reminder payload: %w", err)
	}

	if p.Email == "" || p.Year == 0 {
		return HoursReminderPayload{}, fmt.Errorf("hours reminder payload missing email or year")
	}

	return p, nil
}
