// Package admin gates the site administration surface behind a shared
// admin key and mounts the admin routes of the other plugins. The gate is
// independent of user sessions: admin tooling authenticates with a key
// from ADMIN_KEYS, not with a login.
package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderAdminKey carries the admin key. The admin-key query parameter is
// accepted as a fallback for tooling that cannot set headers.
const (
	HeaderAdminKey = "X-Admin-Key"
	queryAdminKey  = "admin-key"
)

// RequireAdminKey returns middleware that admits requests carrying one of
// keys. A missing key is 400, a wrong key 401. With no keys configured every
// request is refused.
func RequireAdminKey(keys []string) echo.MiddlewareFunc {
	digests := make([][32]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			presented := c.Request().Header.Get(HeaderAdminKey)
			if presented == "" {
				presented = c.QueryParam(queryAdminKey)
			}
			if presented == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error":   "bad_request",
					"message": "admin key is required",
				})
			}

			if !matchesAny(presented, digests) {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error":   "unauthorized",
					"message": "invalid admin key",
				})
			}
			return next(c)
		}
	}
}

// matchesAny compares fixed-size digests in constant time and checks every
// key, so timing does not reveal which key or prefix matched.
func matchesAny(presented string, digests [][32]byte) bool {
	d := sha256.Sum256([]byte(presented))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(d[:], digests[i][:])
	}
	return match == 1
}
