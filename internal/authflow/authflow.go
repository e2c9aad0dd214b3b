package authflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vereinshub/stundenhub/internal/credentials"
	"github.com/vereinshub/stundenhub/internal/domain/member"
	"github.com/vereinshub/stundenhub/internal/tokens"
)

type CredentialVerifier interface {
	Verify(ctx context.Context, email, secret string) error
}

type Directory interface {
	Resolve(ctx context.Context, email string) ([]member.Profile, error)
	MemberByID(ctx context.Context, id string) (member.Profile, error)
}

type SelectionStore interface {
	IssueSelection(ctx context.Context, email string, candidateIDs []string) (tokens.Selection, error)
	RedeemSelection(ctx context.Context, token, profileID string) (tokens.Selection, error)
}

type SessionMinter interface {
	MintSession(profileID, email string) (token string, expiresAt time.Time, err error)
}

// Session is a completed login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Profile   member.Profile
}

// Selection is a login that stopped at the disambiguation step: the email
// maps to several profiles and the caller must pick one.
type Selection struct {
	Token      string
	ExpiresAt  time.Time
	Candidates []member.Profile
}

// LoginResult carries exactly one of Session or Selection.
type LoginResult struct {
	Session   *Session
	Selection *Selection
}

// Service runs the two-step login: credential check against our store, then
// identity resolution against the directory.
type Service struct {
	creds  CredentialVerifier
	dir    Directory
	store  SelectionStore
	minter SessionMinter

	// collators are not safe for concurrent use
	collMu sync.Mutex
	coll   *collate.Collator
}

func NewService(creds CredentialVerifier, dir Directory, store SelectionStore, minter SessionMinter) *Service {
	return &Service{
		creds:  creds,
		dir:    dir,
		store:  store,
		minter: minter,
		coll:   collate.New(language.German),
	}
}

// Login verifies the secret, then resolves the email to profiles. A single
// profile logs straight in; several produce a selection token; none at all
// is reported exactly like a bad secret so the directory contents cannot be
// probed through the login form.
func (s *Service) Login(ctx context.Context, email, secret string) (LoginResult, error) {
	if err := s.creds.Verify(ctx, email, secret); err != nil {
		return LoginResult{}, err
	}

	profiles, err := s.dir.Resolve(ctx, email)

	if err != nil {
		if errors.Is(err, member.ErrNoSuchProfile) {
			return LoginResult{}, credentials.ErrInvalidCredential
		}

		return LoginResult{}, err
	}

	if len(profiles) == 1 {
		sess, err := s.mintFor(profiles[0])

		if err != nil {
			return LoginResult{}, err
		}

		return LoginResult{Session: &sess}, nil
	}

	candidates := s.sortByDisplayName(profiles)

	ids := make([]string, 0, len(candidates))

	for _, p := range candidates {
		ids = append(ids, p.ID)
	}

	sel, err := s.store.IssueSelection(ctx, email, ids)

	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Selection: &Selection{
			Token:      sel.Token,
			ExpiresAt:  sel.ExpiresAt,
			Candidates: candidates,
		},
	}, nil
}

// Select finishes an ambiguous login by redeeming the selection token for
// the chosen profile.
func (s *Service) Select(ctx context.Context, token, profileID string) (Session, error) {
	if _, err := s.store.RedeemSelection(ctx, token, profileID); err != nil {
		return Session{}, err
	}

	profile, err := s.dir.MemberByID(ctx, profileID)

	if err != nil {
		return Session{}, err
	}

	return s.mintFor(profile)
}

func (s *Service) mintFor(p member.Profile) (Session, error) {
	token, expiresAt, err := s.minter.MintSession(p.ID, p.Email)

	if err != nil {
		return Session{}, err
	}

	return Session{Token: token, ExpiresAt: expiresAt, Profile: p}, nil
}

// sortByDisplayName orders candidates the way a German member list reads
// (umlauts sorted with their base letters, not after z).
func (s *Service) sortByDisplayName(profiles []member.Profile) []member.Profile {
	out := append([]member.Profile(nil), profiles...)

	s.collMu.Lock()
	defer s.collMu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return s.coll.CompareString(out[i].DisplayName(), out[j].DisplayName()) < 0
	})

	return out
}
