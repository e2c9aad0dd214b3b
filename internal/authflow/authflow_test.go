package authflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/tokens"
)

type fakeVerifier struct {
	verify func(ctx context.Context, email, secret string) error
}

func (f *fakeVerifier) Verify(ctx context.Context, email, secret string) error {
	return f.verify(ctx, email, secret)
}

type fakeDirectory struct {
	resolve    func(ctx context.Context, email string) ([]member.Profile, error)
	memberByID func(ctx context.Context, id string) (member.Profile, error)
}

func (f *fakeDirectory) Resolve(ctx context.Context, email string) ([]member.Profile, error) {
	return f.resolve(ctx, email)
}

func (f *fakeDirectory) MemberByID(ctx context.Context, id string) (member.Profile, error) {
	return f.memberByID(ctx, id)
}

type fakeMinter struct{}

func (f *fakeMinter) MintSession(profileID, email string) (string, time.Time, error) {
	return "jwt-for-" + profileID, time.Now().Add(time.Hour), nil
}

func okVerifier() *fakeVerifier {
	return &fakeVerifier{verify: func(_ context.Context, _, _ string) error { return nil }}
}

func newTestService(dir *fakeDirectory) *Service {
	return NewService(okVerifier(), dir, tokens.NewMemoryStore(time.Minute, time.Minute), &fakeMinter{})
}

func TestLogin_BadSecret(t *testing.T) {
	verifier := &fakeVerifier{verify: func(_ context.Context, _, _ string) error {
		return credentials.ErrInvalidCredential
	}}

	dir := &fakeDirectory{resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
		t.Error("directory must not be consulted for a bad secret")
		return nil, nil
	}}

	svc := NewService(verifier, dir, tokens.NewMemoryStore(time.Minute, time.Minute), &fakeMinter{})

	_, err := svc.Login(context.Background(), "huber@example.org", "wrong")

	if !errors.Is(err, credentials.ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestLogin_SingleProfileLogsStraightIn(t *testing.T) {
	dir := &fakeDirectory{resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
		return []member.Profile{{ID: "rec1", FirstName: "Anna", LastName: "Huber", Email: "huber@example.org"}}, nil
	}}

	svc := newTestService(dir)

	res, err := svc.Login(context.Background(), "huber@example.org", "secret")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if res.Session == nil || res.Selection != nil {
		t.Fatalf("expected immediate session, got %+v", res)
	}

	if res.Session.Token != "jwt-for-rec1" {
		t.Errorf("token = %q", res.Session.Token)
	}
}

func TestLogin_ZeroProfilesLooksLikeBadSecret(t *testing.T) {
	dir := &fakeDirectory{resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
		return nil, member.ErrNoSuchProfile
	}}

	svc := newTestService(dir)

	_, err := svc.Login(context.Background(), "ghost@example.org", "secret")

	if !errors.Is(err, credentials.ErrInvalidCredential) {
		t.Fatalf("err = %v, want ErrInvalidCredential", err)
	}
}

func TestLogin_DirectoryOutagePropagates(t *testing.T) {
	dir := &fakeDirectory{resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
		return nil, member.ErrDirectoryUnavailable
	}}

	svc := newTestService(dir)

	_, err := svc.Login(context.Background(), "huber@example.org", "secret")

	if !errors.Is(err, member.ErrDirectoryUnavailable) {
		t.Fatalf("err = %v, want ErrDirectoryUnavailable", err)
	}
}

func familyProfiles() []member.Profile {
	return []member.Profile{
		{ID: "rec-max", FirstName: "Max", LastName: "Huber", Email: "huber@example.org"},
		{ID: "rec-oezil", FirstName: "Özlem", LastName: "Huber", Email: "huber@example.org"},
		{ID: "rec-anna", FirstName: "Anna", LastName: "Huber", Email: "huber@example.org"},
	}
}

func TestLogin_MultipleProfilesNeedSelection(t *testing.T) {
	dir := &fakeDirectory{resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
		return familyProfiles(), nil
	}}

	svc := newTestService(dir)

	res, err := svc.Login(context.Background(), "huber@example.org", "secret")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if res.Selection == nil || res.Session != nil {
		t.Fatalf("expected selection, got %+v", res)
	}

	if res.Selection.Token == "" {
		t.Error("selection token missing")
	}

	// German collation: Anna, Max, Özlem (Ö sorts with O, before Z)
	got := make([]string, 0, 3)

	for _, p := range res.Selection.Candidates {
		got = append(got, p.FirstName)
	}

	want := []string{"Anna", "Max", "Özlem"}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate order = %v, want %v", got, want)
		}
	}
}

func TestSelect_FullRoundTrip(t *testing.T) {
	profiles := familyProfiles()

	dir := &fakeDirectory{
		resolve: func(_ context.Context, _ string) ([]member.Profile, error) {
			return profiles, nil
		},
		memberByID: func(_ context.Context, id string) (member.Profile, error) {
			for _, p := range profiles {
				if p.ID == id {
					return p, nil
				}
			}

			return member.Profile{}, member.ErrProfileNotFound
		},
	}

	svc := newTestService(dir)
	ctx := context.Background()

	res, err := svc.Login(ctx, "huber@example.org", "secret")

	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// picking an id outside the candidate set must not burn the token
	if _, err := svc.Select(ctx, res.Selection.Token, "rec-intruder"); !errors.Is(err, tokens.ErrCandidateNotInSet) {
		t.Fatalf("outsider err = %v, want ErrCandidateNotInSet", err)
	}

	sess, err := svc.Select(ctx, res.Selection.Token, "rec-anna")

	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if sess.Token != "jwt-for-rec-anna" || sess.Profile.ID != "rec-anna" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	// token is single use
	if _, err := svc.Select(ctx, res.Selection.Token, "rec-max"); !errors.Is(err, tokens.ErrInvalidSelectionToken) {
		t.Fatalf("replay err = %v, want ErrInvalidSelectionToken", err)
	}
}
