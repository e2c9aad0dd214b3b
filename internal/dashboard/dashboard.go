package dashboard

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/domain/workhour"
)

type Ledger interface {
	ListByMemberYear(ctx context.Context, memberID string, year int) ([]workhour.Entry, error)
}

type Directory interface {
	MemberByID(ctx context.Context, id string) (member.Profile, error)
	FamilyOf(ctx context.Context, p member.Profile) (member.FamilyUnit, error)
}

// MemberSummary is one member's standing for a year.
type MemberSummary struct {
	ProfileID      string           `json:"profileId"`
	Name           string           `json:"name"`
	CompletedHours float64          `json:"completedHours"`
	RequiredHours  float64          `json:"requiredHours"`
	RemainingHours float64          `json:"remainingHours"`
	Percentage     float64          `json:"percentage"`
	Entries        []workhour.Entry `json:"entries,omitempty"`
}

// FamilySummary aggregates a household. Only produced for families with more
// than one member.
type FamilySummary struct {
	FamilyID       string          `json:"familyId"`
	CompletedHours float64         `json:"completedHours"`
	RequiredHours  float64         `json:"requiredHours"`
	RemainingHours float64         `json:"remainingHours"`
	Percentage     float64         `json:"percentage"`
	Members        []MemberSummary `json:"members"`
}

type Summary struct {
	Year     int            `json:"year"`
	Personal MemberSummary  `json:"personal"`
	Family   *FamilySummary `json:"family,omitempty"`
}

// Service builds year summaries from the ledger and the directory. A
// directory outage fails the whole summary; we never show partial family
// numbers.
type Service struct {
	ledger Ledger
	dir    Directory

	collMu sync.Mutex
	coll   *collate.Collator
}

func NewService(ledger Ledger, dir Directory) *Service {
	return &Service{
		ledger: ledger,
		dir:    dir,
		coll:   collate.New(language.German),
	}
}

// Summarize computes the dashboard for one profile and year.
func (s *Service) Summarize(ctx context.Context, profileID string, year int) (Summary, error) {
	profile, err := s.dir.MemberByID(ctx, profileID)

	if err != nil {
		return Summary{}, err
	}

	personal, err := s.memberSummary(ctx, profile, year, true)

	if err != nil {
		return Summary{}, err
	}

	out := Summary{Year: year, Personal: personal}

	unit, err := s.dir.FamilyOf(ctx, profile)

	if err != nil {
		return Summary{}, err
	}

	if unit.Size() > 1 {
		fam, err := s.familySummary(ctx, unit, year)

		if err != nil {
			return Summary{}, err
		}

		out.Family = &fam
	}

	return out, nil
}

func (s *Service) memberSummary(ctx context.Context, p member.Profile, year int, withEntries bool) (MemberSummary, error) {
	entries, err := s.ledger.ListByMemberYear(ctx, p.ID, year)

	if err != nil {
		return MemberSummary{}, err
	}

	completed := sumHundredths(entries)
	required := toHundredths(p.RequiredHours(year))

	sum := MemberSummary{
		ProfileID:      p.ID,
		Name:           p.DisplayName(),
		CompletedHours: fromHundredths(completed),
		RequiredHours:  fromHundredths(required),
		RemainingHours: fromHundredths(remaining(completed, required)),
		Percentage:     percentage(completed, required),
	}

	if withEntries {
		sum.Entries = entries
	}

	return sum, nil
}

func (s *Service) familySummary(ctx context.Context, unit member.FamilyUnit, year int) (FamilySummary, error) {
	members := make([]MemberSummary, 0, unit.Size())

	var completed, required int64

	for _, p := range unit.Members {
		ms, err := s.memberSummary(ctx, p, year, false)

		if err != nil {
			return FamilySummary{}, err
		}

		completed += toHundredths(ms.CompletedHours)
		required += toHundredths(ms.RequiredHours)

		members = append(members, ms)
	}

	s.collMu.Lock()

	sort.SliceStable(members, func(i, j int) bool {
		return s.coll.CompareString(members[i].Name, members[j].Name) < 0
	})

	s.collMu.Unlock()

	return FamilySummary{
		FamilyID:       unit.ID,
		CompletedHours: fromHundredths(completed),
		RequiredHours:  fromHundredths(required),
		RemainingHours: fromHundredths(remaining(completed, required)),
		Percentage:     percentage(completed, required),
		Members:        members,
	}, nil
}

// hours are booked in half-hour steps, so integer hundredths represent every
// legal value exactly and sums cannot drift
func sumHundredths(entries []workhour.Entry) int64 {
	var total int64

	for _, e := range entries {
		total += toHundredths(e.Hours)
	}

	return total
}

func toHundredths(hours float64) int64 {
	return int64(math.Round(hours * 100))
}

func fromHundredths(h int64) float64 {
	return float64(h) / 100
}

func remaining(completed, required int64) int64 {
	if completed >= required {
		return 0
	}

	return required - completed
}

// percentage clamps at 100; a member with no requirement counts as complete.
func percentage(completed, required int64) float64 {
	if required <= 0 {
		return 100
	}

	pct := float64(completed) * 100 / float64(required)

	if pct > 100 {
		return 100
	}

	return math.Round(pct*10) / 10
}
