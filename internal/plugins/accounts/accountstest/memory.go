// Package accountstest provides an in-memory AccountRepository for tests
// that exercise the auth flows without MariaDB.
package accountstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
)

// Repository is a concurrency-safe in-memory accounts.AccountRepository.
// It enforces the same unique keys as the accounts table.
type Repository struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account

	// FailCreate, when set, is returned by Create.
	FailCreate error
	// FailDelete, when set, is returned by Delete.
	FailDelete error
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{accounts: make(map[string]accounts.Account)}
}

var _ accounts.AccountRepository = (*Repository)(nil)

func (r *Repository) Create(_ context.Context, a *accounts.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailCreate != nil {
		return r.FailCreate
	}
	for _, existing := range r.accounts {
		if existing.Handle == a.Handle || existing.Email == a.Email {
			return apperror.NewConflict("an account with this handle or email already exists")
		}
	}
	r.accounts[a.ID] = *a
	return nil
}

func (r *Repository) FindByID(_ context.Context, id string) (*accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, apperror.NewNotFound("account not found")
	}
	return &a, nil
}

func (r *Repository) HandleExists(_ context.Context, handle string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Handle == handle {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) EmailExists(_ context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailDelete != nil {
		return r.FailDelete
	}
	if _, ok := r.accounts[id]; !ok {
		return apperror.NewNotFound("account not found")
	}
	delete(r.accounts, id)
	return nil
}

func (r *Repository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.IsActive = active
		r.accounts[id] = a
	}
	return nil
}

func (r *Repository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok {
		a.LastLoginAt = &at
		r.accounts[id] = a
	}
	return nil
}

func (r *Repository) List(_ context.Context, offset, limit int) ([]accounts.Account, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]accounts.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

// Len returns the number of stored accounts.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}
