package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// resetTokenBytes is the number of random bytes in a reset token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const resetTokenBytes = 32

// ResetTokenIssuer mints and consumes single-use password reset tokens.
// Only the SHA-256 of a token is stored; the raw value exists in the email
// and nowhere else.
type ResetTokenIssuer struct {
	store *CredentialStore
	ttl   time.Duration
	now   func() time.Time
}

// ResetOption configures a ResetTokenIssuer.
type ResetOption func(*ResetTokenIssuer)

// WithClock replaces the issuer's time source.
func WithClock(now func() time.Time) ResetOption {
	return func(i *ResetTokenIssuer) { i.now = now }
}

// NewResetTokenIssuer creates an issuer whose tokens live for ttl.
func NewResetTokenIssuer(store *CredentialStore, ttl time.Duration, opts ...ResetOption) *ResetTokenIssuer {
	i := &ResetTokenIssuer{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL is how long issued tokens stay valid.
func (i *ResetTokenIssuer) TTL() time.Duration { return i.ttl }

// Issue creates a token for c, replacing any earlier one.
func (i *ResetTokenIssuer) Issue(ctx context.Context, c *Credential) (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating reset token: %w", err))
	}
	raw := hex.EncodeToString(b)

	expiresAt := i.now().UTC().Add(i.ttl)
	if err := i.store.repo.SetResetToken(ctx, c.ID, hashToken(raw), expiresAt); err != nil {
		return "", wrapRepoErr("storing reset token", err)
	}
	return raw, nil
}

// Consume sets a new password if raw is a live token, and invalidates the
// token in the same statement. Wrong, expired, and already-used tokens all
// fail with the same invalid_token error.
func (i *ResetTokenIssuer) Consume(ctx context.Context, raw, newPassword string) (*Credential, error) {
	if !isResetToken(raw) {
		return nil, apperror.NewInvalidToken()
	}

	tokenHash := hashToken(raw)
	now := i.now().UTC()

	c, err := i.store.repo.FindByResetToken(ctx, tokenHash, now)
	if apperror.IsNotFound(err) {
		return nil, apperror.NewInvalidToken()
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("finding reset token: %w", err))
	}

	hash, err := i.store.hash(newPassword)
	if err != nil {
		return nil, err
	}

	ok, err := i.store.repo.ConsumeResetToken(ctx, c.ID, tokenHash, hash, now)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if !ok {
		return nil, apperror.NewInvalidToken()
	}

	c.PasswordHash = hash.Encoded()
	c.ResetTokenHash = nil
	c.ResetTokenExpiresAt = nil
	c.UpdatedAt = now
	return c, nil
}

// Clear drops c's pending token, used when the reset email could not be sent.
func (i *ResetTokenIssuer) Clear(ctx context.Context, c *Credential) error {
	return i.store.repo.ClearResetToken(ctx, c.ID)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// isResetToken reports whether raw has the shape of an issued token.
func isResetToken(raw string) bool {
	if len(raw) != resetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
