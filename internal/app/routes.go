package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/rootapp/internal/database"
	"github.com/keyxmakerx/rootapp/internal/middleware"
	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
	"github.com/keyxmakerx/rootapp/internal/plugins/admin"
	"github.com/keyxmakerx/rootapp/internal/plugins/audit"
	"github.com/keyxmakerx/rootapp/internal/plugins/auth"
	"github.com/keyxmakerx/rootapp/internal/plugins/mail"
)

// healthTimeout bounds the dependency pings behind /healthz.
const healthTimeout = 2 * time.Second

// Repositories groups the persistence layer the plugins are built on.
type Repositories struct {
	Accounts       accounts.AccountRepository
	Credentials    auth.CredentialRepository
	SecurityEvents audit.SecurityEventRepository
}

// NewRepositories builds the MariaDB-backed repositories.
func NewRepositories(db *sql.DB) Repositories {
	return Repositories{
		Accounts:       accounts.NewAccountRepository(db),
		Credentials:    auth.NewCredentialRepository(db),
		SecurityEvents: audit.NewSecurityEventRepository(db),
	}
}

// RegisterRoutes builds every plugin on top of repos and the mail transport
// and registers its routes. This is the single place where routes are
// aggregated. Background work started here stops when ctx is cancelled.
func (a *App) RegisterRoutes(ctx context.Context, repos Repositories, transport mail.Transport) error {
	e := a.Echo
	cfg := a.Config

	// --- Infrastructure ---

	hasher, err := auth.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}
	sessions, err := auth.NewSessionStore(cfg.Auth.SessionMode, a.Redis, cfg.Auth.SecretKey, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	mailer := mail.NewService(transport, cfg.FrontendURL, cfg.Auth.ResetTokenTTL, mail.DefaultBreakerSettings())
	if !mailer.IsConfigured() {
		slog.Warn("mail transport is not configured, password reset is disabled",
			slog.String("transport", transport.Name()),
		)
	}

	// --- Plugins ---

	auditService := audit.NewSecurityEventService(repos.SecurityEvents)
	accountService := accounts.NewAccountService(repos.Accounts)

	creds, err := auth.NewCredentialStore(repos.Credentials, hasher)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	resets := auth.NewResetTokenIssuer(creds, cfg.Auth.ResetTokenTTL)
	authService := auth.NewAuthService(creds, resets, sessions, accountService, mailer, auditService)
	a.Auth = authService

	authHandler := auth.NewHandler(authService)
	accountHandler := accounts.NewHandler(accountService, auditService)
	auditHandler := audit.NewHandler(auditService)
	adminHandler := admin.NewHandler(accountService, authService, mailer)

	// --- Public Routes ---

	e.GET("/healthz", a.healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Credential-guessing and reset-mail endpoints share one per-IP budget.
	limit := middleware.RateLimit(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	auth.RegisterRoutes(e, authHandler, authService, limit)

	// --- Admin Routes ---

	if len(cfg.AdminKeys) == 0 {
		slog.Warn("ADMIN_KEYS is empty, admin routes will reject every request")
	}
	admin.RegisterRoutes(e, adminHandler, cfg.AdminKeys, authHandler, accountHandler, auditHandler)

	return nil
}

// healthz reports 200 when MariaDB and Redis both answer a ping.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	if err := database.Ping(ctx, a.DB, a.Redis); err != nil {
		slog.Warn("health check failed", slog.Any("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
