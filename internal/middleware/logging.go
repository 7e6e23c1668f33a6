// Package middleware provides HTTP middleware for the Root API echo server.
// Middleware is applied globally or per route group; see
// internal/app/routes.go for registration.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

type ctxKey int

const accountIDKey ctxKey = iota

// WithAccountID returns a context carrying the authenticated account id so
// request logs can be attributed without importing the auth plugin.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey, accountID)
}

// AccountIDFromContext returns the account id stored by WithAccountID.
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// RequestLogger returns middleware that logs every HTTP request with
// structured fields: method, route, status, latency, and remote IP.
// Query strings are omitted because reset flows may carry secrets.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Let the error handler write the status before we read it.
				c.Error(err)
			}

			// Request may have been replaced by auth middleware.
			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("route", routeOf(c)),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if id := AccountIDFromContext(req.Context()); id != "" {
				attrs = append(attrs, slog.String("account_id", id))
			}

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)
			return nil
		}
	}
}

// routeOf returns the matched route pattern, which keeps reset tokens in
// /reset-password/:token out of logs and metric labels.
func routeOf(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
