package audit

import "github.com/labstack/echo/v4"

// RegisterAdminRoutes mounts the security event listing on the admin group.
func RegisterAdminRoutes(g *echo.Group, h *Handler) {
	g.GET("/security-events", h.List)
}
