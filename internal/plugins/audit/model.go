// Package audit records site-wide security events: logins, logouts, password
// resets, password changes, registrations, and admin deletions. Events are
// observations only; recording never blocks or fails the action it describes.
package audit

import "time"

// Security event types follow the "resource.verb" pattern for consistent
// filtering in the admin listing.
const (
	EventRegistered             = "account.registered"
	EventLoginSuccess           = "login.success"
	EventLoginFailed            = "login.failed"
	EventLogout                 = "logout"
	EventSessionRevoked         = "session.revoked"
	EventPasswordResetRequested = "password.reset_requested"
	EventPasswordResetCompleted = "password.reset_completed"
	EventPasswordChanged        = "password.changed"
	EventCredentialDeleted      = "admin.credential_deleted"
	EventAccountDisabled        = "admin.account_disabled"
	EventAccountEnabled         = "admin.account_enabled"
)

// knownEventTypes backs the type filter on the admin listing.
var knownEventTypes = map[string]bool{
	EventRegistered:             true,
	EventLoginSuccess:           true,
	EventLoginFailed:            true,
	EventLogout:                 true,
	EventSessionRevoked:         true,
	EventPasswordResetRequested: true,
	EventPasswordResetCompleted: true,
	EventPasswordChanged:        true,
	EventCredentialDeleted:      true,
	EventAccountDisabled:        true,
	EventAccountEnabled:         true,
}

// SecurityEvent is a single row of the security_events table.
type SecurityEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	AccountID string         `json:"account_id,omitempty"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventList is a page of security events.
type EventList struct {
	Events  []SecurityEvent `json:"events"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}
