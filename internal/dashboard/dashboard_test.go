package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/domain/workhour"
)

type fakeLedger struct {
	listByMemberYear func(ctx context.Context, memberID string, year int) ([]workhour.Entry, error)
}

func (f *fakeLedger) ListByMemberYear(ctx context.Context, memberID string, year int) ([]workhour.Entry, error) {
	return f.listByMemberYear(ctx, memberID, year)
}

type fakeDirectory struct {
	memberByID func(ctx context.Context, id string) (member.Profile, error)
	familyOf   func(ctx context.Context, p member.Profile) (member.FamilyUnit, error)
}

func (f *fakeDirectory) MemberByID(ctx context.Context, id string) (member.Profile, error) {
	return f.memberByID(ctx, id)
}

func (f *fakeDirectory) FamilyOf(ctx context.Context, p member.Profile) (member.FamilyUnit, error) {
	return f.familyOf(ctx, p)
}

func entry(t *testing.T, date string, hours float64) workhour.Entry {
	t.Helper()

	d, err := workhour.ParseDate(date)

	if err != nil {
		t.Fatalf("parse %q: %v", date, err)
	}

	return workhour.Entry{ID: "e-" + date, MemberID: "p", Date: d, Description: "Arbeit", Hours: hours, CreatedAt: time.Now(), UpdatedAt: time.Now()}
}

func req(h float64) *float64 { return &h }

func soloDirectory(p member.Profile) *fakeDirectory {
	return &fakeDirectory{
		memberByID: func(_ context.Context, id string) (member.Profile, error) {
			if id != p.ID {
				return member.Profile{}, member.ErrProfileNotFound
			}

			return p, nil
		},
		familyOf: func(_ context.Context, prof member.Profile) (member.FamilyUnit, error) {
			return member.FamilyUnit{ID: "solo:" + prof.ID, Members: []member.Profile{prof}}, nil
		},
	}
}

func TestSummarize_PersonalComplete(t *testing.T) {
	p := member.Profile{ID: "p1", FirstName: "Anna", LastName: "Huber", RequiredHoursPerYear: req(8)}

	ledger := &fakeLedger{listByMemberYear: func(_ context.Context, _ string, _ int) ([]workhour.Entry, error) {
		return []workhour.Entry{entry(t, "2025-01-05", 3), entry(t, "2025-01-10", 5)}, nil
	}}

	svc := NewService(ledger, soloDirectory(p))

	sum, err := svc.Summarize(context.Background(), "p1", 2025)

	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if sum.Personal.CompletedHours != 8 || sum.Personal.RequiredHours != 8 {
		t.Fatalf("personal = %+v", sum.Personal)
	}

	if sum.Personal.Percentage != 100 || sum.Personal.RemainingHours != 0 {
		t.Fatalf("personal = %+v", sum.Personal)
	}

	if sum.Family != nil {
		t.Fatal("single-member unit must not produce a family block")
	}

	if len(sum.Personal.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(sum.Personal.Entries))
	}
}

func TestSummarize_FamilyAggregation(t *testing.T) {
	p1 := member.Profile{ID: "p1", FirstName: "Berta", LastName: "Huber", RequiredHoursPerYear: req(8)}
	p2 := member.Profile{ID: "p2", FirstName: "Anna", LastName: "Huber", RequiredHoursPerYear: req(8)}

	dir := &fakeDirectory{
		memberByID: func(_ context.Context, id string) (member.Profile, error) {
			return p1, nil
		},
		familyOf: func(_ context.Context, _ member.Profile) (member.FamilyUnit, error) {
			return member.FamilyUnit{ID: "fam1", Members: []member.Profile{p1, p2}}, nil
		},
	}

	ledger := &fakeLedger{listByMemberYear: func(_ context.Context, memberID string, _ int) ([]workhour.Entry, error) {
		if memberID == "p1" {
			return []workhour.Entry{entry(t, "2025-03-01", 4)}, nil
		}

		return nil, nil
	}}

	svc := NewService(ledger, dir)

	sum, err := svc.Summarize(context.Background(), "p1", 2025)

	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if sum.Family == nil {
		t.Fatal("family block missing")
	}

	fam := sum.Family

	if fam.CompletedHours != 4 || fam.RequiredHours != 16 || fam.RemainingHours != 12 || fam.Percentage != 25 {
		t.Fatalf("family = %+v", fam)
	}

	// member contributions sorted by display name
	if fam.Members[0].Name != "Anna Huber" || fam.Members[1].Name != "Berta Huber" {
		t.Fatalf("member order = %q, %q", fam.Members[0].Name, fam.Members[1].Name)
	}
}

func TestSummarize_ZeroRequirementCountsComplete(t *testing.T) {
	p := member.Profile{ID: "p1", FirstName: "Emil", LastName: "Huber", RequiredHoursPerYear: req(0)}

	ledger := &fakeLedger{listByMemberYear: func(_ context.Context, _ string, _ int) ([]workhour.Entry, error) {
		return nil, nil
	}}

	svc := NewService(ledger, soloDirectory(p))

	sum, err := svc.Summarize(context.Background(), "p1", 2025)

	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if sum.Personal.Percentage != 100 {
		t.Fatalf("percentage = %v, want 100", sum.Personal.Percentage)
	}
}

func TestSummarize_PercentageClampsAt100(t *testing.T) {
	p := member.Profile{ID: "p1", FirstName: "Fritz", LastName: "Huber", RequiredHoursPerYear: req(8)}

	ledger := &fakeLedger{listByMemberYear: func(_ context.Context, _ string, _ int) ([]workhour.Entry, error) {
		return []workhour.Entry{entry(t, "2025-02-01", 20)}, nil
	}}

	svc := NewService(ledger, soloDirectory(p))

	sum, err := svc.Summarize(context.Background(), "p1", 2025)

	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if sum.Personal.Percentage != 100 {
		t.Fatalf("percentage = %v, want clamp at 100", sum.Personal.Percentage)
	}
}

func TestSummarize_DirectoryOutageFailsWhole(t *testing.T) {
	dir := &fakeDirectory{
		memberByID: func(_ context.Context, _ string) (member.Profile, error) {
			return member.Profile{}, member.ErrDirectoryUnavailable
		},
	}

	svc := NewService(&fakeLedger{}, dir)

	_, err := svc.Summarize(context.Background(), "p1", 2025)

	if !errors.Is(err, member.ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
}

func TestSummarize_HalfHourSumsExactly(t *testing.T) {
	p := member.Profile{ID: "p1", FirstName: "Gerd", LastName: "Huber", RequiredHoursPerYear: req(8)}

	// ten half-hour entries: naive float addition of 0.5s is exact, but
	// mixes like 0.5+2.5+... with rounding percentages used to drift
	entries := []workhour.Entry{
		entry(t, "2025-01-01", 0.5),
		entry(t, "2025-01-02", 1.5),
		entry(t, "2025-01-03", 2.5),
		entry(t, "2025-01-04", 0.5),
	}

	ledger := &fakeLedger{listByMemberYear: func(_ context.Context, _ string, _ int) ([]workhour.Entry, error) {
		return entries, nil
	}}

	svc := NewService(ledger, soloDirectory(p))

	sum, err := svc.Summarize(context.Background(), "p1", 2025)

	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if sum.Personal.CompletedHours != 5 {
		t.Fatalf("completed = %v, want 5", sum.Personal.CompletedHours)
	}

	if sum.Personal.Percentage != 62.5 {
		t.Fatalf("percentage = %v, want 62.5", sum.Personal.Percentage)
	}
}
