// Package auth is the session and credential core of the Root API. It turns
// a username or email plus password into a revocable session, validates
// bearer tokens on every protected request, and runs the password reset flow.
//
// Sessions come in two flavors selected by SESSION_MODE: stateful records in
// Redis, or signed JWTs with a Redis revocation list. Both sit behind the
// SessionStore interface so the service never knows which one is active.
package auth

import (
	"time"

	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
)

// Credential is a login record. It points at an account by AccountID; the
// reference is not enforced by a foreign key, so a credential may outlive
// its account.
type Credential struct {
	ID                  string     `json:"id"`
	AccountID           string     `json:"account_id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // Never expose in JSON responses.
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	LastActiveAt        *time.Time `json:"last_active_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	AccountID    string `json:"account_id"`
	CredentialID string `json:"credential_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

// SessionHandle describes one login session. Stateful sessions persist it
// in Redis; stateless sessions rebuild it from token claims.
type SessionHandle struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	CredentialID string    `json:"credential_id"`
	IsValid      bool      `json:"is_valid"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`

	// Current marks the session making the request in GET /sessions.
	Current bool `json:"current,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,handle"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	FirstName   string `json:"first_name" validate:"max=50"`
	LastName    string `json:"last_name" validate:"max=50"`
	DisplayName string `json:"display_name" validate:"max=20"`
}

// LoginRequest is the body of POST /login. The identifier may be a
// username or an email address.
type LoginRequest struct {
	IdentifierOrEmail string `json:"identifierOrEmail" validate:"required"`
	Password          string `json:"password" validate:"required"`
}

// ForgotPasswordRequest is the body of POST /forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the body of POST /reset-password/:token.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// ChangePasswordRequest is the body of PUT /password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

// --- Service Input DTOs (passed from handler to service) ---

// RegisterInput is the validated input for creating an account and its
// credential.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	FirstName   string
	LastName    string
	DisplayName string
	Meta        RequestMeta
}

// LoginInput is the validated input for authenticating.
type LoginInput struct {
	LoginKey  string
	Password  string
	IPAddress string
	UserAgent string
}

// CreateCredentialInput is the input for CredentialStore.Create.
type CreateCredentialInput struct {
	Username  string
	Email     string
	Password  string
	AccountID string
}

// RequestMeta carries the client details recorded with sessions and
// security events.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// --- Results ---

// LoginResult is returned by a successful login. Token is shown to the
// client exactly once.
type LoginResult struct {
	Token     string         `json:"token"`
	Principal Principal      `json:"principal"`
	Session   *SessionHandle `json:"session"`
}

// RegisterResult pairs the new account with its credential.
type RegisterResult struct {
	Account    *accounts.Account `json:"account"`
	Credential *Credential       `json:"credential"`
}

// CredentialList is a page of credentials for the admin listing.
type CredentialList struct {
	Credentials []Credential `json:"credentials"`
	Total       int          `json:"total"`
	Page        int          `json:"page"`
	PerPage     int          `json:"per_page"`
}

// MeResult is the body of GET /me.
type MeResult struct {
	Principal Principal         `json:"principal"`
	Account   *accounts.Account `json:"account"`
}
