package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
	"github.com/keyxmakerx/rootapp/internal/plugins/audit"
	"github.com/keyxmakerx/rootapp/internal/plugins/auth"
)

// RegisterRoutes creates the /admin group behind the admin key gate and
// mounts the admin routes of the credential, account, and audit plugins.
// Returns the group so other plugins can register additional admin routes.
func RegisterRoutes(
	e *echo.Echo,
	h *Handler,
	keys []string,
	authHandler *auth.Handler,
	accountHandler *accounts.Handler,
	auditHandler *audit.Handler,
) *echo.Group {
	g := e.Group("/admin", RequireAdminKey(keys))

	g.GET("", h.Dashboard)
	auth.RegisterAdminRoutes(g, authHandler)
	accounts.RegisterAdminRoutes(g, accountHandler)
	audit.RegisterAdminRoutes(g, auditHandler)

	return g
}
