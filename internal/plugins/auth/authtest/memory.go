// Package authtest provides an in-memory auth.CredentialRepository for
// tests that exercise the auth flows without MariaDB.
package authtest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/plugins/auth"
)

// CredentialRepository is a concurrency-safe in-memory
// auth.CredentialRepository. It enforces the same unique keys as the
// credentials table and compares them case-insensitively like its collation.
type CredentialRepository struct {
	mu    sync.Mutex
	creds map[string]auth.Credential

	// FailCreate, when set, is returned by Create.
	FailCreate error
}

// NewCredentialRepository returns an empty repository.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{creds: make(map[string]auth.Credential)}
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)

func (r *CredentialRepository) Create(_ context.Context, c *auth.Credential, hash auth.HashedPassword) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailCreate != nil {
		return r.FailCreate
	}
	if hash.IsZero() {
		return errors.New("empty password hash")
	}
	for _, existing := range r.creds {
		if strings.EqualFold(existing.Username, c.Username) || strings.EqualFold(existing.Email, c.Email) {
			return apperror.NewConflict("a credential with this username or email already exists")
		}
	}

	c.PasswordHash = hash.Encoded()
	r.creds[c.ID] = *c
	return nil
}

func (r *CredentialRepository) find(match func(auth.Credential) bool) (*auth.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.creds {
		if match(c) {
			return &c, nil
		}
	}
	return nil, apperror.NewNotFound("credential not found")
}

func (r *CredentialRepository) FindByID(_ context.Context, id string) (*auth.Credential, error) {
	return r.find(func(c auth.Credential) bool { return c.ID == id })
}

func (r *CredentialRepository) FindByUsername(_ context.Context, username string) (*auth.Credential, error) {
	return r.find(func(c auth.Credential) bool { return strings.EqualFold(c.Username, username) })
}

func (r *CredentialRepository) FindByEmail(_ context.Context, email string) (*auth.Credential, error) {
	return r.find(func(c auth.Credential) bool { return strings.EqualFold(c.Email, email) })
}

func (r *CredentialRepository) FindByAccountID(_ context.Context, accountID string) (*auth.Credential, error) {
	return r.find(func(c auth.Credential) bool { return c.AccountID == accountID })
}

func (r *CredentialRepository) FindByResetToken(_ context.Context, tokenHash string, now time.Time) (*auth.Credential, error) {
	return r.find(func(c auth.Credential) bool { return liveToken(c, tokenHash, now) })
}

func (r *CredentialRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	return err == nil, nil
}

func (r *CredentialRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.FindByEmail(ctx, email)
	return err == nil, nil
}

func (r *CredentialRepository) List(_ context.Context, offset, limit int) ([]auth.Credential, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]auth.Credential, 0, len(r.creds))
	for _, c := range r.creds {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (r *CredentialRepository) UpdatePassword(_ context.Context, id string, hash auth.HashedPassword, at time.Time) error {
	return r.update(id, func(c *auth.Credential) {
		c.PasswordHash = hash.Encoded()
		c.ResetTokenHash = nil
		c.ResetTokenExpiresAt = nil
		c.UpdatedAt = at
	})
}

func (r *CredentialRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.creds[id]; !ok {
		return apperror.NewNotFound("credential not found")
	}
	delete(r.creds, id)
	return nil
}

func (r *CredentialRepository) Touch(_ context.Context, id string, at time.Time) error {
	_ = r.update(id, func(c *auth.Credential) { c.LastActiveAt = &at })
	return nil
}

func (r *CredentialRepository) SetResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(c *auth.Credential) {
		c.ResetTokenHash = &tokenHash
		c.ResetTokenExpiresAt = &expiresAt
	})
}

func (r *CredentialRepository) ClearResetToken(_ context.Context, id string) error {
	_ = r.update(id, func(c *auth.Credential) {
		c.ResetTokenHash = nil
		c.ResetTokenExpiresAt = nil
	})
	return nil
}

func (r *CredentialRepository) ConsumeResetToken(_ context.Context, id, tokenHash string, hash auth.HashedPassword, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.creds[id]
	if !ok || !liveToken(c, tokenHash, now) {
		return false, nil
	}
	c.PasswordHash = hash.Encoded()
	c.ResetTokenHash = nil
	c.ResetTokenExpiresAt = nil
	c.UpdatedAt = now
	r.creds[id] = c
	return true, nil
}

func (r *CredentialRepository) update(id string, fn func(*auth.Credential)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.creds[id]
	if !ok {
		return apperror.NewNotFound("credential not found")
	}
	fn(&c)
	r.creds[id] = c
	return nil
}

// Get returns a copy of the stored credential, including secret columns.
func (r *CredentialRepository) Get(id string) (auth.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[id]
	return c, ok
}

// Len returns the number of stored credentials.
func (r *CredentialRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.creds)
}

func liveToken(c auth.Credential, tokenHash string, now time.Time) bool {
	return c.ResetTokenHash != nil && *c.ResetTokenHash == tokenHash &&
		c.ResetTokenExpiresAt != nil && c.ResetTokenExpiresAt.After(now)
}
