package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SecurityEventRepository defines the data access contract for security events.
type SecurityEventRepository interface {
	// Insert persists a new event. ID and CreatedAt must be set.
	Insert(ctx context.Context, event *SecurityEvent) error

	// List returns events most recent first. An empty eventType matches all.
	List(ctx context.Context, eventType string, offset, limit int) ([]SecurityEvent, int, error)
}

type securityEventRepository struct {
	db *sql.DB
}

// NewSecurityEventRepository creates a new repository backed by the given DB.
func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

// Insert writes the event. Details are serialized to JSON; an empty
// account id is stored as NULL.
func (r *securityEventRepository) Insert(ctx context.Context, e *SecurityEvent) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("marshaling security event details: %w", err)
		}
	}

	var accountID any
	if e.AccountID != "" {
		accountID = e.AccountID
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO security_events (id, event_type, account_id, ip_address, user_agent, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventType, accountID, e.IPAddress, e.UserAgent, details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	return nil
}

func (r *securityEventRepository) List(ctx context.Context, eventType string, offset, limit int) ([]SecurityEvent, int, error) {
	where := ""
	var args []any
	if eventType != "" {
		where = ` WHERE event_type = ?`
		args = append(args, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM security_events`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting security events: %w", err)
	}

	query := `SELECT id, event_type, COALESCE(account_id, ''), ip_address, user_agent, details, created_at
	          FROM security_events` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing security events: %w", err)
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var e SecurityEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.AccountID, &e.IPAddress, &e.UserAgent, &details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning security event: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				e.Details = map[string]any{"_parse_error": "invalid JSON"}
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating security events: %w", err)
	}

	return events, total, nil
}
