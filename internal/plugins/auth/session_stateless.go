package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// revokedKeyPrefix marks a stateless session id (the jti) as revoked.
const revokedKeyPrefix = "revoked_session:"

// validAfterKeyPrefix holds, per account, the instant before which its
// tokens no longer authenticate and the one session exempt from that cutoff.
const validAfterKeyPrefix = "sessions_valid_after:"

// minSecretLen is the shortest HMAC key accepted for signing sessions.
const minSecretLen = 32

// sessionClaims are the JWT claims of a stateless session token. Subject is
// the account id and ID (jti) is the session id. IssuedAtNano orders tokens
// against an account-wide revocation within the same second.
type sessionClaims struct {
	CredentialID string `json:"cid"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	IssuedAtNano int64  `json:"iat_ns,omitempty"`
	jwt.RegisteredClaims
}

// statelessStore issues signed session tokens. Nothing is written on login;
// Redis only holds revoked session ids and per-account cutoffs until the
// tokens they cover would expire.
type statelessStore struct {
	redis  *redis.Client
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStatelessStore creates a JWT session store signed with secret.
func NewStatelessStore(rdb *redis.Client, secret string, ttl time.Duration) (SessionStore, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d characters", minSecretLen)
	}
	return &statelessStore{redis: rdb, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *statelessStore) Create(ctx context.Context, p Principal, meta RequestMeta) (string, *SessionHandle, error) {
	issued := s.now().UTC()
	now := issued.Truncate(time.Second)
	claims := sessionClaims{
		CredentialID: p.CredentialID,
		Username:     p.Username,
		Email:        p.Email,
		IssuedAtNano: issued.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.AccountID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("signing session token: %w", err)
	}

	h := handleFromClaims(&claims, now)
	h.IPAddress = meta.IPAddress
	h.UserAgent = meta.UserAgent
	return token, h, nil
}

func (s *statelessStore) Lookup(ctx context.Context, token string) (*SessionHandle, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errSessionInvalid
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errSessionInvalid
	}

	var (
		revoked *redis.IntCmd
		cutoff  *redis.MapStringStringCmd
	)
	_, err = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		revoked = pipe.Exists(ctx, revokedKeyPrefix+claims.ID)
		cutoff = pipe.HGetAll(ctx, validAfterKeyPrefix+claims.Subject)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking revocation list: %w", err)
	}
	if revoked.Val() > 0 || revokedByCutoff(claims, cutoff.Val()) {
		return nil, errSessionInvalid
	}

	return handleFromClaims(claims, s.now().UTC()), nil
}

// revokedByCutoff reports whether the account-wide cutoff covers the token.
func revokedByCutoff(c *sessionClaims, cutoff map[string]string) bool {
	raw, ok := cutoff["at"]
	if !ok {
		return false
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	if c.ID == cutoff["keep"] {
		return false
	}

	issued := c.IssuedAtNano
	if issued == 0 && c.IssuedAt != nil {
		issued = c.IssuedAt.Time.UnixNano()
	}
	return issued <= at
}

// Touch is a no-op: a signed token cannot record activity.
func (s *statelessStore) Touch(context.Context, *SessionHandle) error { return nil }

// Revoke adds the session id to the revocation list for one full session
// lifetime, which outlasts any token carrying it.
func (s *statelessStore) Revoke(ctx context.Context, sessionID string) error {
	if err := s.redis.Set(ctx, revokedKeyPrefix+sessionID, "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

func (s *statelessStore) RevokeAll(ctx context.Context, accountID string) error {
	return s.RevokeOthers(ctx, accountID, "")
}

// RevokeOthers records a cutoff for the account: tokens issued up to now
// stop authenticating, except the session keep. The marker lives for one
// session lifetime, after which every token it covers has expired anyway.
func (s *statelessStore) RevokeOthers(ctx context.Context, accountID, keep string) error {
	key := validAfterKeyPrefix + accountID
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "at", s.now().UTC().UnixNano(), "keep", keep)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoking account sessions: %w", err)
	}
	return nil
}

func (s *statelessStore) ListActive(context.Context, string) ([]SessionHandle, error) {
	return nil, ErrListingUnsupported
}

func handleFromClaims(c *sessionClaims, now time.Time) *SessionHandle {
	h := &SessionHandle{
		ID:           c.ID,
		AccountID:    c.Subject,
		CredentialID: c.CredentialID,
		IsValid:      true,
		LastActiveAt: now,
	}
	if c.IssuedAt != nil {
		h.CreatedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		h.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return h
}
