package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// credentialsPerPage is the page size for the admin credential listing.
const credentialsPerPage = 50

// dummyPassword is hashed once at startup. Logins for unknown keys verify
// against it so they cost the same as a wrong password.
const dummyPassword = "root-dummy-password"

// CredentialStore owns credential records and is the only writer of
// password hashes.
type CredentialStore struct {
	repo      CredentialRepository
	hasher    PasswordHasher
	dummyHash string
	now       func() time.Time
}

// NewCredentialStore creates a store over repo using hasher for all
// password writes.
func NewCredentialStore(repo CredentialRepository, hasher PasswordHasher) (*CredentialStore, error) {
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing dummy password: %w", err)
	}
	return &CredentialStore{repo: repo, hasher: hasher, dummyHash: dummy, now: time.Now}, nil
}

// Create inserts a credential for an existing account. Username and email
// must both be unused.
func (s *CredentialStore) Create(ctx context.Context, in CreateCredentialInput) (*Credential, error) {
	username := normalizeUsername(in.Username)
	email := normalizeEmail(in.Email)

	if err := s.EnsureAvailable(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &Credential{
		ID:           uuid.NewString(),
		AccountID:    in.AccountID,
		Username:     username,
		Email:        email,
		LastActiveAt: &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, c, hash); err != nil {
		return nil, wrapRepoErr("creating credential", err)
	}
	return c, nil
}

// EnsureAvailable returns a conflict if the username or email is already
// used by a credential.
func (s *CredentialStore) EnsureAvailable(ctx context.Context, username, email string) error {
	taken, err := s.repo.UsernameExists(ctx, normalizeUsername(username))
	if err != nil {
		return apperror.NewInternal(err)
	}
	if taken {
		return apperror.NewConflict("this username is already taken")
	}

	taken, err = s.repo.EmailExists(ctx, normalizeEmail(email))
	if err != nil {
		return apperror.NewInternal(err)
	}
	if taken {
		return apperror.NewConflict("an account with this email already exists")
	}
	return nil
}

// FindByLoginKey looks a credential up by email when key contains "@",
// otherwise by username.
func (s *CredentialStore) FindByLoginKey(ctx context.Context, key string) (*Credential, error) {
	var (
		c   *Credential
		err error
	)
	if strings.Contains(key, "@") {
		c, err = s.repo.FindByEmail(ctx, normalizeEmail(key))
	} else {
		c, err = s.repo.FindByUsername(ctx, normalizeUsername(key))
	}
	if err != nil {
		return nil, wrapRepoErr("finding credential", err)
	}
	return c, nil
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	c, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, wrapRepoErr("finding credential by email", err)
	}
	return c, nil
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*Credential, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr("finding credential", err)
	}
	return c, nil
}

func (s *CredentialStore) FindByAccountID(ctx context.Context, accountID string) (*Credential, error) {
	c, err := s.repo.FindByAccountID(ctx, accountID)
	if err != nil {
		return nil, wrapRepoErr("finding credential by account", err)
	}
	return c, nil
}

// List returns a page of credentials. Pages are 1-indexed; invalid pages clamp to 1.
func (s *CredentialStore) List(ctx context.Context, page int) (*CredentialList, error) {
	if page < 1 {
		page = 1
	}

	items, total, err := s.repo.List(ctx, (page-1)*credentialsPerPage, credentialsPerPage)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if items == nil {
		items = []Credential{}
	}
	return &CredentialList{Credentials: items, Total: total, Page: page, PerPage: credentialsPerPage}, nil
}

// UpdatePassword hashes raw and stores it, clearing any pending reset token.
func (s *CredentialStore) UpdatePassword(ctx context.Context, id, raw string) (*Credential, error) {
	hash, err := s.hash(raw)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, s.now().UTC()); err != nil {
		return nil, wrapRepoErr("updating password", err)
	}
	return s.FindByID(ctx, id)
}

// Delete removes a credential and returns what was deleted.
func (s *CredentialStore) Delete(ctx context.Context, id string) (*Credential, error) {
	c, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, wrapRepoErr("deleting credential", err)
	}
	return c, nil
}

func (s *CredentialStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.repo.Touch(ctx, id, at)
}

// VerifyPassword checks raw against c's hash. A nil credential is verified
// against a dummy hash and always fails, so unknown login keys take as long
// as known ones.
func (s *CredentialStore) VerifyPassword(c *Credential, raw string) (bool, error) {
	if c == nil {
		_, _ = s.hasher.Verify(raw, s.dummyHash)
		return false, nil
	}
	return s.hasher.Verify(raw, c.PasswordHash)
}

// NeedsRehash reports whether c's hash should be upgraded on next login.
func (s *CredentialStore) NeedsRehash(c *Credential) bool {
	r, ok := s.hasher.(rehasher)
	return ok && r.NeedsRehash(c.PasswordHash)
}

// hash is the only place raw passwords become HashedPassword values.
func (s *CredentialStore) hash(raw string) (HashedPassword, error) {
	encoded, err := s.hasher.Hash(raw)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return HashedPassword{}, apperror.NewValidation("password is too long")
	}
	if err != nil {
		return HashedPassword{}, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	return HashedPassword{encoded: encoded}, nil
}

func normalizeUsername(s string) string {
	return strings.TrimSpace(s)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// wrapRepoErr passes domain errors through and hides everything else
// behind a generic internal error.
func wrapRepoErr(op string, err error) error {
	if apperror.IsNotFound(err) || apperror.IsConflict(err) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
