package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/rootapp/internal/config"
)

// errSessionInvalid covers every reason a token does not authenticate:
// unknown, malformed, expired, or revoked. Callers answer it with a generic 401.
var errSessionInvalid = errors.New("session invalid")

// ErrListingUnsupported is returned by ListActive when sessions are not
// tracked server-side.
var ErrListingUnsupported = errors.New("session listing requires stateful sessions")

// SessionStore persists and checks login sessions.
type SessionStore interface {
	// Create starts a session for p and returns the bearer token. The raw
	// token is never stored.
	Create(ctx context.Context, p Principal, meta RequestMeta) (string, *SessionHandle, error)

	// Lookup resolves a bearer token to a live session.
	Lookup(ctx context.Context, token string) (*SessionHandle, error)

	// Touch records activity on a session. Best effort.
	Touch(ctx context.Context, h *SessionHandle) error

	// Revoke invalidates a session. Revoking an unknown or already revoked
	// session succeeds.
	Revoke(ctx context.Context, sessionID string) error

	// RevokeAll invalidates every session of the account.
	RevokeAll(ctx context.Context, accountID string) error

	// RevokeOthers invalidates every session of the account except keep.
	RevokeOthers(ctx context.Context, accountID, keep string) error

	ListActive(ctx context.Context, accountID string) ([]SessionHandle, error)
}

// NewSessionStore returns the backend named by mode.
func NewSessionStore(mode string, rdb *redis.Client, secret string, ttl time.Duration) (SessionStore, error) {
	switch mode {
	case config.SessionModeStateful:
		return NewStatefulStore(rdb, ttl), nil
	case config.SessionModeStateless:
		return NewStatelessStore(rdb, secret, ttl)
	default:
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
}

// isSessionInvalid reports whether err means the token simply does not
// authenticate, as opposed to an infrastructure failure.
func isSessionInvalid(err error) bool {
	return errors.Is(err, errSessionInvalid)
}
