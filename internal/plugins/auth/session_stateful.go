package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for stateful sessions. All three keys of a session
// carry the session TTL.
const (
	sessionKeyPrefix        = "session:"
	sessionTokenKeyPrefix   = "session_token:"
	accountSessionKeyPrefix = "account_sessions:"
)

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

const maxRevokeAttempts = 3

// statefulStore keeps session records in Redis. A token maps to a session
// id through its SHA-256, so a Redis dump never reveals usable tokens.
type statefulStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewStatefulStore creates a Redis-backed session store.
func NewStatefulStore(rdb *redis.Client, ttl time.Duration) SessionStore {
	return &statefulStore{redis: rdb, ttl: ttl, now: time.Now}
}

func (s *statefulStore) Create(ctx context.Context, p Principal, meta RequestMeta) (string, *SessionHandle, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(b)

	now := s.now().UTC()
	h := &SessionHandle{
		ID:           uuid.NewString(),
		AccountID:    p.AccountID,
		CredentialID: p.CredentialID,
		IsValid:      true,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.ttl),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	}

	data, err := json.Marshal(h)
	if err != nil {
		return "", nil, fmt.Errorf("marshaling session: %w", err)
	}

	setKey := accountSessionKeyPrefix + p.AccountID
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyPrefix+h.ID, data, s.ttl)
		pipe.Set(ctx, sessionTokenKeyPrefix+hashToken(token), h.ID, s.ttl)
		pipe.SAdd(ctx, setKey, h.ID)
		pipe.Expire(ctx, setKey, s.ttl)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("storing session in Redis: %w", err)
	}
	return token, h, nil
}

func (s *statefulStore) Lookup(ctx context.Context, token string) (*SessionHandle, error) {
	id, err := s.redis.Get(ctx, sessionTokenKeyPrefix+hashToken(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("reading session index from Redis: %w", err)
	}

	h, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !h.IsValid || !s.now().Before(h.ExpiresAt) {
		return nil, errSessionInvalid
	}
	return h, nil
}

// Touch bumps last_active_at. The write is skipped if the record changed
// underneath it, so a concurrent revoke is never overwritten.
func (s *statefulStore) Touch(ctx context.Context, h *SessionHandle) error {
	key := sessionKeyPrefix + h.ID
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.getWith(ctx, tx, h.ID)
		if err != nil {
			return err
		}
		if !cur.IsValid {
			return nil
		}
		cur.LastActiveAt = s.now().UTC()
		data, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, errSessionInvalid) {
		return nil
	}
	return err
}

// Revoke flips is_valid to false and keeps the record until its TTL, so the
// next request carrying the token sees a revoked session rather than a
// missing one.
func (s *statefulStore) Revoke(ctx context.Context, sessionID string) error {
	key := sessionKeyPrefix + sessionID
	revoke := func(tx *redis.Tx) error {
		h, err := s.getWith(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		h.IsValid = false
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			pipe.SRem(ctx, accountSessionKeyPrefix+h.AccountID, sessionID)
			return nil
		})
		return err
	}

	// A concurrent touch aborts the transaction; retry a few times.
	var err error
	for range maxRevokeAttempts {
		err = s.redis.Watch(ctx, revoke, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, errSessionInvalid) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

func (s *statefulStore) RevokeAll(ctx context.Context, accountID string) error {
	return s.RevokeOthers(ctx, accountID, "")
}

func (s *statefulStore) RevokeOthers(ctx context.Context, accountID, keep string) error {
	ids, err := s.redis.SMembers(ctx, accountSessionKeyPrefix+accountID).Result()
	if err != nil {
		return fmt.Errorf("listing account sessions: %w", err)
	}

	var errs []error
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := s.Revoke(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListActive returns the account's valid sessions, newest first. Ids whose
// records have expired are pruned from the membership set.
func (s *statefulStore) ListActive(ctx context.Context, accountID string) ([]SessionHandle, error) {
	setKey := accountSessionKeyPrefix + accountID
	ids, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing account sessions: %w", err)
	}

	out := []SessionHandle{}
	var stale []any
	for _, id := range ids {
		h, err := s.get(ctx, id)
		if errors.Is(err, errSessionInvalid) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if h.IsValid {
			out = append(out, *h)
		}
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, setKey, stale...).Err(); err != nil {
			slog.Warn("failed to prune expired sessions",
				slog.String("account_id", accountID),
				slog.Any("error", err),
			)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *statefulStore) get(ctx context.Context, id string) (*SessionHandle, error) {
	return s.getWith(ctx, s.redis, id)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *statefulStore) getWith(ctx context.Context, c getter, id string) (*SessionHandle, error) {
	data, err := c.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var h SessionHandle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &h, nil
}
