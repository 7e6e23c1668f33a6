package admin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
	"github.com/keyxmakerx/rootapp/internal/plugins/auth"
)

// MailStatus reports the state of outbound mail.
type MailStatus interface {
	IsConfigured() bool
	Available() bool
}

// Overview is the body of GET /admin.
type Overview struct {
	Accounts       int  `json:"accounts"`
	Credentials    int  `json:"credentials"`
	MailConfigured bool `json:"mail_configured"`
	MailAvailable  bool `json:"mail_available"`
}

// Handler serves the admin overview. Depends on other plugins' services
// via interfaces, with no direct repo access.
type Handler struct {
	accounts accounts.AccountService
	auth     auth.AuthService
	mail     MailStatus
}

// NewHandler creates a new admin handler.
func NewHandler(accountSvc accounts.AccountService, authSvc auth.AuthService, mail MailStatus) *Handler {
	return &Handler{accounts: accountSvc, auth: authSvc, mail: mail}
}

// Dashboard returns headline counts and mail health (GET /admin).
func (h *Handler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	return c.JSON(http.StatusOK, Overview{
		Accounts:       h.countAccounts(ctx),
		Credentials:    h.countCredentials(ctx),
		MailConfigured: h.mail.IsConfigured(),
		MailAvailable:  h.mail.Available(),
	})
}

func (h *Handler) countAccounts(ctx context.Context) int {
	list, err := h.accounts.List(ctx, 1)
	if err != nil {
		slog.Warn("admin overview: counting accounts", slog.Any("error", err))
		return 0
	}
	return list.Total
}

func (h *Handler) countCredentials(ctx context.Context) int {
	list, err := h.auth.ListCredentials(ctx, 1)
	if err != nil {
		slog.Warn("admin overview: counting credentials", slog.Any("error", err))
		return 0
	}
	return list.Total
}
