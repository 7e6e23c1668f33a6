package accounts

import "github.com/labstack/echo/v4"

// RegisterAdminRoutes mounts account management on the admin group. The
// group is already gated by the admin key middleware.
func RegisterAdminRoutes(g *echo.Group, h *Handler) {
	g.GET("/accounts", h.List)
	g.GET("/accounts/:id", h.Get)
	g.PUT("/accounts/:id/active", h.SetActive)
}
