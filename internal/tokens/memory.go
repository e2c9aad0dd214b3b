package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps tokens in process memory. Fine for a single instance;
// deployments with more than one API replica use the redis store.
type MemoryStore struct {
	mu sync.Mutex

	selectionTTL time.Duration
	resetTTL     time.Duration

	selections   map[string]Selection
	resets       map[string]Reset
	resetByEmail map[string]string // email -> active token
}

func NewMemoryStore(selectionTTL, resetTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		selectionTTL: selectionTTL,
		resetTTL:     resetTTL,
		selections:   make(map[string]Selection),
		resets:       make(map[string]Reset),
		resetByEmail: make(map[string]string),
	}
}

func (s *MemoryStore) IssueSelection(_ context.Context, email string, candidateIDs []string) (Selection, error) {
	now := time.Now().UTC()

	sel := Selection{
		Token:        uuid.NewString(),
		Email:        email,
		CandidateIDs: append([]string(nil), candidateIDs...),
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.selectionTTL),
	}

	s.mu.Lock()
	s.selections[sel.Token] = sel
	s.mu.Unlock()

	return sel, nil
}

func (s *MemoryStore) RedeemSelection(_ context.Context, token, profileID string) (Selection, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	sel, ok := s.selections[token]

	if !ok {
		return Selection{}, ErrInvalidSelectionToken
	}

	if now.After(sel.ExpiresAt) {
		delete(s.selections, token)
		return Selection{}, ErrInvalidSelectionToken
	}

	found := false

	for _, id := range sel.CandidateIDs {
		if id == profileID {
			found = true
			break
		}
	}

	// wrong candidate does not burn the token
	if !found {
		return Selection{}, ErrCandidateNotInSet
	}

	delete(s.selections, token)

	return sel, nil
}

func (s *MemoryStore) IssueReset(_ context.Context, email, profileID string) (Reset, error) {
	now := time.Now().UTC()

	r := Reset{
		Token:     uuid.NewString(),
		Email:     email,
		ProfileID: profileID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.resetTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.resetByEmail[email]; ok {
		delete(s.resets, old)
	}

	s.resets[r.Token] = r
	s.resetByEmail[email] = r.Token

	return r, nil
}

func (s *MemoryStore) RedeemReset(_ context.Context, token string) (Reset, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resets[token]

	if !ok {
		return Reset{}, ErrInvalidResetToken
	}

	delete(s.resets, token)
	delete(s.resetByEmail, r.Email)

	if now.After(r.ExpiresAt) {
		return Reset{}, ErrInvalidResetToken
	}

	return r, nil
}

func (s *MemoryStore) RevokeResetsForEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.resetByEmail[email]; ok {
		delete(s.resets, token)
		delete(s.resetByEmail, email)
	}

	return nil
}
