package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vereinshub/stundenhub/internal/security"
)

// Record is one stored credential. Email is the key; profiles live in the
// directory, so an email may authenticate several profiles with one secret.
type Record struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrNotFound          = errors.New("credential not found")
	ErrInvalidCredential = errors.New("invalid email or password")
)

type Repo interface {
	GetByEmail(ctx context.Context, email string) (Record, error)
	UpsertPassword(ctx context.Context, email, hash string) error
}

// ResetRevoker invalidates outstanding password reset tokens for an email.
type ResetRevoker interface {
	RevokeResetsForEmail(ctx context.Context, email string) error
}

type Service struct {
	repo    Repo
	revoker ResetRevoker

	// compared against when the email is unknown so both failure paths
	// cost one bcrypt verification
	dummyHash string
}

func NewService(repo Repo, revoker ResetRevoker) (*Service, error) {
	dummy, err := security.HashPassword("decoy-not-a-real-secret")

	if err != nil {
		return nil, err
	}

	return &Service{
		repo:      repo,
		revoker:   revoker,
		dummyHash: dummy,
	}, nil
}

// Verify checks the secret for the email. Unknown email and wrong secret are
// indistinguishable to the caller: same error, same bcrypt cost.
func (s *Service) Verify(ctx context.Context, email, secret string) error {
	rec, err := s.repo.GetByEmail(ctx, normalize(email))

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = security.CheckPassword(s.dummyHash, secret)
			return ErrInvalidCredential
		}

		return err
	}

	if err := security.CheckPassword(rec.PasswordHash, secret); err != nil {
		return ErrInvalidCredential
	}

	return nil
}

// SetPassword stores a new secret for the email, inserting the credential
// row when the member so far existed only in the directory, and revokes any
// outstanding reset tokens.
func (s *Service) SetPassword(ctx context.Context, email, secret string) error {
	if err := security.ValidateNewSecret(secret); err != nil {
		return err
	}

	hash, err := security.HashPassword(secret)

	if err != nil {
		return err
	}

	norm := normalize(email)

	if err := s.repo.UpsertPassword(ctx, norm, hash); err != nil {
		return err
	}

	return s.revoker.RevokeResetsForEmail(ctx, norm)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
