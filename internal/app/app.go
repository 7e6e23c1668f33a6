// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together the plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/config"
	"github.com/keyxmakerx/rootapp/internal/middleware"
	"github.com/keyxmakerx/rootapp/internal/plugins/auth"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool behind the account, credential, and
	// security event repositories.
	DB *sql.DB

	// Redis backs the session stores.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Auth is the session and credential core, set by RegisterRoutes.
	Auth auth.AuthService
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() feeds session metadata, audit events, and rate limiting, so
	// forwarding headers are honored only from known proxies.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	e.Validator = newRequestValidator()

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())

	// Tracing before metrics and logging so both see the request span.
	a.Echo.Use(middleware.Tracing())
	a.Echo.Use(middleware.Metrics())
	a.Echo.Use(middleware.RequestLogger())

	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))

	// Browser frontends send the bearer token cross-origin.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.CORSAllowedOrigins,
		AllowCredentials: true,
	}))
}

// errorHandler is the custom Echo error handler. Every error becomes a JSON
// body of the form {"error": <type>, "message": <safe message>}. Internal
// causes are logged, never serialized.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := apperror.TypeInternal
	message := "an unexpected error occurred"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}

	case errors.As(err, &echoErr):
		// Router errors such as 404, 405, and oversized bodies.
		code = echoErr.Code
		errType = statusType(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = strings.ToLower(msg)
		} else {
			message = defaultErrorMessage(code)
		}

	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if err := c.JSON(code, map[string]string{
		"error":   errType,
		"message": message,
	}); err != nil {
		slog.Warn("writing error response failed", slog.Any("error", err))
	}
}

// statusType turns a status code into a snake_case error type such as
// "not_found" or "method_not_allowed".
func statusType(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// defaultErrorMessage returns a message for common HTTP status codes when the
// error carried none.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "the request was invalid or cannot be processed"
	case http.StatusUnauthorized:
		return "please authenticate"
	case http.StatusForbidden:
		return "you don't have permission to access this resource"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusMethodNotAllowed:
		return "method not allowed"
	case http.StatusRequestEntityTooLarge:
		return "request body too large"
	case http.StatusTooManyRequests:
		return "too many requests, please slow down"
	case http.StatusServiceUnavailable:
		return "the service is temporarily unavailable"
	default:
		return "an unexpected error occurred"
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting root API server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("session_mode", a.Config.Auth.SessionMode),
	)
	return a.Echo.Start(addr)
}
