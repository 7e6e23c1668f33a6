package audit

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves the admin security event listing.
type Handler struct {
	service SecurityEventService
}

// NewHandler creates a new audit handler.
func NewHandler(service SecurityEventService) *Handler {
	return &Handler{service: service}
}

// List returns a page of security events
// (GET /admin/security-events?type=&page=).
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	list, err := h.service.List(c.Request().Context(), c.QueryParam("type"), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}
