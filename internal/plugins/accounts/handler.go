package accounts

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/plugins/audit"
)

// EventRecorder receives security events for admin actions.
type EventRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// Handler serves the admin account endpoints.
type Handler struct {
	service AccountService
	events  EventRecorder
}

// NewHandler creates a new account handler. events may be nil.
func NewHandler(service AccountService, events EventRecorder) *Handler {
	return &Handler{service: service, events: events}
}

// List returns a page of accounts (GET /admin/accounts).
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	list, err := h.service.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Get returns a single account (GET /admin/accounts/:id).
func (h *Handler) Get(c echo.Context) error {
	a, err := h.service.FindByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// SetActive activates or deactivates an account (PUT /admin/accounts/:id/active).
func (h *Handler) SetActive(c echo.Context) error {
	var req SetActiveRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	a, err := h.service.SetActive(c.Request().Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		return err
	}

	if h.events != nil {
		eventType := audit.EventAccountDisabled
		if a.IsActive {
			eventType = audit.EventAccountEnabled
		}
		h.events.Record(c.Request().Context(), audit.SecurityEvent{
			EventType: eventType,
			AccountID: a.ID,
			IPAddress: c.RealIP(),
			UserAgent: c.Request().UserAgent(),
		})
	}
	return c.JSON(http.StatusOK, a)
}
