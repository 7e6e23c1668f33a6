package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// Recovery returns middleware that recovers from panics, logs the stack
// trace, and answers with a generic JSON 500.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic recovered",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", c.Request().Method),
						slog.String("route", routeOf(c)),
					)

					returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
						"error":   apperror.TypeInternal,
						"message": "an unexpected error occurred",
					})
				}
			}()

			return next(c)
		}
	}
}
