package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	selMetaPrefix  = "sel:"
	selCandPrefix  = "selcand:"
	resetPrefix    = "rst:"
	resetIdxPrefix = "rstidx:"
)

// consumeSelection checks membership and deletes both keys in one atomic
// script so two concurrent redemptions cannot both succeed.
// Returns: the meta JSON on success, -1 when the candidate is not in the
// set (token untouched), false/nil when the token is gone.
var consumeSelection = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return false
end
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 0 then
  return -1
end
local meta = redis.call("GET", KEYS[1])
redis.call("DEL", KEYS[1], KEYS[2])
return meta
`)

// RedisStore keeps tokens in redis with native TTL expiry; safe across
// multiple API replicas.
type RedisStore struct {
	rdb          *redis.Client
	selectionTTL time.Duration
	resetTTL     time.Duration
}

func NewRedisStore(rdb *redis.Client, selectionTTL, resetTTL time.Duration) *RedisStore {
	return &RedisStore{
		rdb:          rdb,
		selectionTTL: selectionTTL,
		resetTTL:     resetTTL,
	}
}

func (s *RedisStore) IssueSelection(ctx context.Context, email string, candidateIDs []string) (Selection, error) {
	now := time.Now().UTC()

	sel := Selection{
		Token:        uuid.NewString(),
		Email:        email,
		CandidateIDs: append([]string(nil), candidateIDs...),
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.selectionTTL),
	}

	meta, err := json.Marshal(sel)

	if err != nil {
		return Selection{}, err
	}

	members := make([]interface{}, 0, len(sel.CandidateIDs))

	for _, id := range sel.CandidateIDs {
		members = append(members, id)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, selMetaPrefix+sel.Token, meta, s.selectionTTL)
	pipe.SAdd(ctx, selCandPrefix+sel.Token, members...)
	pipe.Expire(ctx, selCandPrefix+sel.Token, s.selectionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return Selection{}, err
	}

	return sel, nil
}

func (s *RedisStore) RedeemSelection(ctx context.Context, token, profileID string) (Selection, error) {
	keys := []string{selMetaPrefix + token, selCandPrefix + token}

	res, err := consumeSelection.Run(ctx, s.rdb, keys, profileID).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Selection{}, ErrInvalidSelectionToken
		}

		return Selection{}, err
	}

	switch v := res.(type) {
	case int64:
		if v == -1 {
			return Selection{}, ErrCandidateNotInSet
		}

		return Selection{}, ErrInvalidSelectionToken
	case string:
		var sel Selection

		if err := json.Unmarshal([]byte(v), &sel); err != nil {
			return Selection{}, err
		}

		return sel, nil
	default:
		return Selection{}, ErrInvalidSelectionToken
	}
}

func (s *RedisStore) IssueReset(ctx context.Context, email, profileID string) (Reset, error) {
	now := time.Now().UTC()

	r := Reset{
		Token:     uuid.NewString(),
		Email:     email,
		ProfileID: profileID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.resetTTL),
	}

	meta, err := json.Marshal(r)

	if err != nil {
		return Reset{}, err
	}

	// drop any previous token for this email before indexing the new one
	old, err := s.rdb.GetDel(ctx, resetIdxPrefix+email).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return Reset{}, err
	}

	pipe := s.rdb.TxPipeline()

	if old != "" {
		pipe.Del(ctx, resetPrefix+old)
	}

	pipe.Set(ctx, resetPrefix+r.Token, meta, s.resetTTL)
	pipe.Set(ctx, resetIdxPrefix+email, r.Token, s.resetTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return Reset{}, err
	}

	return r, nil
}

func (s *RedisStore) RedeemReset(ctx context.Context, token string) (Reset, error) {
	// GETDEL makes the consume atomic
	meta, err := s.rdb.GetDel(ctx, resetPrefix+token).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Reset{}, ErrInvalidResetToken
		}

		return Reset{}, err
	}

	var r Reset

	if err := json.Unmarshal([]byte(meta), &r); err != nil {
		return Reset{}, err
	}

	_ = s.rdb.Del(ctx, resetIdxPrefix+r.Email).Err()

	return r, nil
}

func (s *RedisStore) RevokeResetsForEmail(ctx context.Context, email string) error {
	token, err := s.rdb.GetDel(ctx, resetIdxPrefix+email).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return err
	}

	return s.rdb.Del(ctx, resetPrefix+token).Err()
}
