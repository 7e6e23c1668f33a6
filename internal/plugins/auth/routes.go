package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the public and bearer-protected auth routes.
// limit guards the unauthenticated POST endpoints against brute-force and
// credential stuffing.
func RegisterRoutes(e *echo.Echo, h *Handler, service AuthService, limit echo.MiddlewareFunc) {
	// Public routes, no session required.
	e.POST("/register", h.Register, limit)
	e.POST("/login", h.Login, limit)
	e.POST("/forgot-password", h.ForgotPassword, limit)
	e.POST("/reset-password/:token", h.ResetPassword, limit)

	// Bearer-protected routes. Middleware is attached per route so unknown
	// paths still 404 instead of 401.
	authed := RequireAuth(service)
	e.POST("/logout", h.Logout, authed)
	e.GET("/sessions", h.Sessions, authed)
	e.DELETE("/sessions/:id", h.RevokeSession, authed)
	e.GET("/me", h.Me, authed)
	e.PUT("/password", h.ChangePassword, authed)
}

// RegisterAdminRoutes mounts credential management on the admin group.
func RegisterAdminRoutes(g *echo.Group, h *Handler) {
	g.GET("/credentials", h.ListCredentials)
	g.GET("/credentials/:id", h.GetCredential)
	g.DELETE("/credentials/:id", h.DeleteCredential)
}
