package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// perPage is the number of events returned per page in the admin listing.
const perPage = 50

// SecurityEventService records and lists security events.
type SecurityEventService interface {
	// Record persists an event. Failures are logged, never returned, so a
	// broken audit table cannot block a login or a password reset.
	Record(ctx context.Context, event SecurityEvent)

	// List returns a page of events, optionally filtered by type.
	List(ctx context.Context, eventType string, page int) (*EventList, error)
}

type securityEventService struct {
	repo SecurityEventRepository
	now  func() time.Time
}

// NewSecurityEventService creates a new service with the given repository.
func NewSecurityEventService(repo SecurityEventRepository) SecurityEventService {
	return &securityEventService{repo: repo, now: time.Now}
}

func (s *securityEventService) Record(ctx context.Context, e SecurityEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	// The caller's request may be cancelled right after it responds.
	ctx = context.WithoutCancel(ctx)

	if err := s.repo.Insert(ctx, &e); err != nil {
		slog.Error("failed to record security event",
			slog.String("event_type", e.EventType),
			slog.String("account_id", e.AccountID),
			slog.Any("error", err),
		)
	}
}

func (s *securityEventService) List(ctx context.Context, eventType string, page int) (*EventList, error) {
	if eventType != "" && !knownEventTypes[eventType] {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown event type %q", eventType))
	}
	if page < 1 {
		page = 1
	}

	events, total, err := s.repo.List(ctx, eventType, (page-1)*perPage, perPage)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if events == nil {
		events = []SecurityEvent{}
	}

	return &EventList{Events: events, Total: total, Page: page, PerPage: perPage}, nil
}
