// Package accounts owns the account (profile) record that credentials and
// sessions refer to. Only the parts the auth core consumes are implemented:
// creation at registration, lookup, activation state, last-login tracking,
// and admin listing.
package accounts

import "time"

// Account is the profile record behind a credential. A credential's
// AccountID points here; deactivating an account blocks authentication
// immediately.
type Account struct {
	ID          string     `json:"id"`
	Handle      string     `json:"handle"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Bio         string     `json:"bio"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateAccountInput is the validated input for creating an account.
type CreateAccountInput struct {
	Handle      string
	FirstName   string
	LastName    string
	DisplayName string
	Email       string
}

// SetActiveRequest is the body of PUT /admin/accounts/:id/active.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// AccountList is a page of accounts for the admin listing.
type AccountList struct {
	Accounts []Account `json:"accounts"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}
