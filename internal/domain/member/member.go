package member

import (
	"errors"
	"strings"
	"time"
)

// Profile is a read-only identity record owned by the external member
// directory. Several profiles may share one email (family members).
type Profile struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	FamilyID  string  `json:"familyId,omitempty"`
	BirthDate *string `json:"birthDate,omitempty"` // YYYY-MM-DD when present

	// explicit yearly requirement from the directory; when nil the
	// requirement is derived from the birth date (see RequiredHours).
	RequiredHoursPerYear *float64 `json:"requiredHoursPerYear,omitempty"`
}

func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)

	if name == "" {
		return p.Email
	}

	return name
}

// FamilyUnit groups profiles sharing a household. Units are derived from the
// directory; a profile without a recorded family gets a synthetic one-member
// unit.
type FamilyUnit struct {
	ID      string    `json:"id"`
	Members []Profile `json:"members"`
}

func (f FamilyUnit) Size() int { return len(f.Members) }

var (
	ErrNoSuchProfile        = errors.New("no profile for email")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrDirectoryUnavailable = errors.New("member directory unavailable")
)

const standardRequiredHours = 8.0

// RequiredHours returns the yearly work-hour requirement for the profile.
// Directory-provided values win; otherwise members aged 17 through 69 in the
// given year owe the standard hours, everyone else owes none. Unparseable or
// missing birth dates count as obligated.
func (p Profile) RequiredHours(year int) float64 {
	if p.RequiredHoursPerYear != nil {
		return *p.RequiredHoursPerYear
	}

	if p.BirthDate == nil || strings.TrimSpace(*p.BirthDate) == "" {
		return standardRequiredHours
	}

	raw := strings.TrimSpace(*p.BirthDate)

	// directory dates arrive as plain dates or RFC3339 timestamps
	born, err := time.Parse("2006-01-02", raw)

	if err != nil {
		born, err = time.Parse(time.RFC3339, raw)

		if err != nil {
			return standardRequiredHours
		}
	}

	age := year - born.Year()

	if age >= 17 && age < 70 {
		return standardRequiredHours
	}

	return 0
}
