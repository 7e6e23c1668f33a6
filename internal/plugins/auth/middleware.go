package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/middleware"
)

// Context keys for storing session data in Echo context. Other plugins
// read them through the exported getters below.
const (
	contextKeyPrincipal = "auth_principal"
	contextKeySession   = "auth_session"
	contextKeyAccountID = "auth_account_id"
)

// RequireAuth returns middleware that validates the bearer token and
// injects the principal and session into the request context. Every
// failure gets the same 401 body.
func RequireAuth(service AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return unauthorized(c)
			}

			p, session, err := service.Validate(c.Request().Context(), token)
			if err != nil {
				return unauthorized(c)
			}

			c.Set(contextKeyPrincipal, p)
			c.Set(contextKeySession, session)
			c.Set(contextKeyAccountID, p.AccountID)

			req := c.Request()
			c.SetRequest(req.WithContext(middleware.WithAccountID(req.Context(), p.AccountID)))

			return next(c)
		}
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":   "unauthorized",
		"message": "please authenticate",
	})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// --- Exported getters for other plugins ---

// GetPrincipal returns the authenticated principal, or nil when the
// request did not pass RequireAuth.
func GetPrincipal(c echo.Context) *Principal {
	p, _ := c.Get(contextKeyPrincipal).(*Principal)
	return p
}

// GetSession returns the session carrying the request, or nil.
func GetSession(c echo.Context) *SessionHandle {
	s, _ := c.Get(contextKeySession).(*SessionHandle)
	return s
}

// GetAccountID returns the authenticated account id, or "".
func GetAccountID(c echo.Context) string {
	id, _ := c.Get(contextKeyAccountID).(string)
	return id
}
