package tokens

import (
	"context"
	"errors"
	"time"
)

// Selection is a short-lived, single-use token minted when a login resolves
// to more than one profile. It is bound to the full candidate list so a
// redemption cannot pick a profile outside the ambiguity it was issued for.
type Selection struct {
	Token        string    `json:"token"`
	Email        string    `json:"email"`
	CandidateIDs []string  `json:"candidateIds"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Reset is a single-use password reset token. One active token per email:
// issuing a new one replaces the old.
type Reset struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ProfileID string    `json:"profileId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var (
	ErrInvalidSelectionToken = errors.New("selection token unknown, consumed or expired")
	ErrCandidateNotInSet     = errors.New("profile is not among the token's candidates")
	ErrInvalidResetToken     = errors.New("reset token unknown, consumed or expired")
)

// Store issues and redeems both token kinds. Redemption is atomic
// check-and-consume: of two concurrent redemptions exactly one wins.
// RedeemSelection with a profile outside the candidate set fails with
// ErrCandidateNotInSet and leaves the token redeemable.
type Store interface {
	IssueSelection(ctx context.Context, email string, candidateIDs []string) (Selection, error)
	RedeemSelection(ctx context.Context, token, profileID string) (Selection, error)

	IssueReset(ctx context.Context, email, profileID string) (Reset, error)
	RedeemReset(ctx context.Context, token string) (Reset, error)
	RevokeResetsForEmail(ctx context.Context, email string) error
}
