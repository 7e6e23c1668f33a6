package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/sanitize"
)

// perPage is the page size for the admin account listing.
const perPage = 50

// AccountService is the account record service consumed by the auth core
// and the admin surface.
type AccountService interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, input CreateAccountInput) (*Account, error)
	Delete(ctx context.Context, id string) error

	// IsActive reports whether the account exists and is active. A missing
	// account yields (false, nil).
	IsActive(ctx context.Context, id string) (bool, error)

	UpdateLastLogin(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (*Account, error)
	List(ctx context.Context, page int) (*AccountList, error)
}

type accountService struct {
	repo AccountRepository
	now  func() time.Time
}

// NewAccountService creates a new account service backed by the repository.
func NewAccountService(repo AccountRepository) AccountService {
	return &accountService{repo: repo, now: time.Now}
}

func (s *accountService) FindByID(ctx context.Context, id string) (*Account, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapRepoErr("finding account", err)
	}
	return a, nil
}

// Create validates uniqueness and inserts a new active account. Emails are
// stored lower-cased and trimmed; names are reduced to plain text.
func (s *accountService) Create(ctx context.Context, input CreateAccountInput) (*Account, error) {
	handle := strings.TrimSpace(input.Handle)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	taken, err := s.repo.HandleExists(ctx, handle)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if taken {
		return nil, apperror.NewConflict("this handle is already taken")
	}

	taken, err = s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if taken {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	now := s.now().UTC()
	a := &Account{
		ID:          uuid.NewString(),
		Handle:      handle,
		FirstName:   sanitize.Text(input.FirstName),
		LastName:    sanitize.Text(input.LastName),
		DisplayName: sanitize.Text(input.DisplayName),
		Email:       email,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, wrapRepoErr("creating account", err)
	}

	slog.Info("account created", slog.String("account_id", a.ID))
	return a, nil
}

func (s *accountService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapRepoErr("deleting account", err)
	}
	slog.Info("account deleted", slog.String("account_id", id))
	return nil
}

func (s *accountService) IsActive(ctx context.Context, id string) (bool, error) {
	a, err := s.repo.FindByID(ctx, id)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking account activity: %w", err)
	}
	return a.IsActive, nil
}

func (s *accountService) UpdateLastLogin(ctx context.Context, id string) error {
	if err := s.repo.UpdateLastLogin(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// SetActive activates or deactivates an account. Deactivated accounts fail
// session validation on their next request.
func (s *accountService) SetActive(ctx context.Context, id string, active bool) (*Account, error) {
	a, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, apperror.NewInternal(err)
	}
	a.IsActive = active

	slog.Info("account activity changed",
		slog.String("account_id", id),
		slog.Bool("is_active", active),
	)
	return a, nil
}

// List returns a page of accounts. Pages are 1-indexed; invalid pages clamp to 1.
func (s *accountService) List(ctx context.Context, page int) (*AccountList, error) {
	if page < 1 {
		page = 1
	}

	items, total, err := s.repo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if items == nil {
		items = []Account{}
	}

	return &AccountList{Accounts: items, Total: total, Page: page, PerPage: perPage}, nil
}

// wrapRepoErr passes domain errors through and hides everything else
// behind a generic internal error.
func wrapRepoErr(op string, err error) error {
	if apperror.IsNotFound(err) || apperror.IsConflict(err) {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}
