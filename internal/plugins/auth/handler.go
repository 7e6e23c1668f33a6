package auth

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// forgotPasswordMessage is returned whether or not the email is known.
const forgotPasswordMessage = "if an account with that email exists, a password reset link has been sent"

// Handler serves the authentication endpoints. Handlers are thin: they bind
// the request, call the service, and render the response.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// bindAndValidate decodes the JSON body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	return c.Validate(req)
}

func requestMeta(c echo.Context) RequestMeta {
	return RequestMeta{IPAddress: c.RealIP(), UserAgent: c.Request().UserAgent()}
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, map[string]string{"message": msg})
}

// Register creates an account and its credential (POST /register).
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
		Meta:        requestMeta(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// Login exchanges credentials for a bearer token (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	meta := requestMeta(c)
	res, err := h.service.Login(c.Request().Context(), LoginInput{
		LoginKey:  req.IdentifierOrEmail,
		Password:  req.Password,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Logout revokes the session carrying the request (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.Logout(c.Request().Context(), GetPrincipal(c), GetSession(c), requestMeta(c)); err != nil {
		return err
	}
	return message(c, "logged out")
}

// Sessions lists the caller's active sessions (GET /sessions).
func (h *Handler) Sessions(c echo.Context) error {
	list, err := h.service.ListActive(c.Request().Context(), GetAccountID(c))
	if err != nil {
		return err
	}

	current := GetSession(c)
	for i := range list {
		list[i].Current = current != nil && list[i].ID == current.ID
	}
	return c.JSON(http.StatusOK, list)
}

// RevokeSession revokes another of the caller's sessions (DELETE /sessions/:id).
func (h *Handler) RevokeSession(c echo.Context) error {
	err := h.service.RevokeOwn(c.Request().Context(), GetAccountID(c), c.Param("id"), requestMeta(c))
	if err != nil {
		return err
	}
	return message(c, "session revoked")
}

// Me returns the caller's principal and account (GET /me).
func (h *Handler) Me(c echo.Context) error {
	res, err := h.service.Me(c.Request().Context(), GetPrincipal(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// ChangePassword sets a new password for the caller (PUT /password).
func (h *Handler) ChangePassword(c echo.Context) error {
	var req ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session := GetSession(c)
	err := h.service.ChangePassword(c.Request().Context(), GetPrincipal(c), session.ID,
		req.CurrentPassword, req.NewPassword, requestMeta(c))
	if err != nil {
		return err
	}
	return message(c, "password changed")
}

// ForgotPassword emails a reset link (POST /forgot-password). The response
// never reveals whether the email is registered.
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.service.ForgotPassword(c.Request().Context(), req.Email, requestMeta(c)); err != nil {
		return err
	}
	return message(c, forgotPasswordMessage)
}

// ResetPassword consumes a reset token (POST /reset-password/:token).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.service.ResetPassword(c.Request().Context(), c.Param("token"), req.Password, requestMeta(c))
	if err != nil {
		return err
	}
	return message(c, "password has been reset")
}

// --- Admin ---

// ListCredentials returns a page of credentials (GET /admin/credentials).
func (h *Handler) ListCredentials(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	list, err := h.service.ListCredentials(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// GetCredential returns one credential (GET /admin/credentials/:id).
func (h *Handler) GetCredential(c echo.Context) error {
	cred, err := h.service.GetCredential(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cred)
}

// DeleteCredential removes a credential and its account
// (DELETE /admin/credentials/:id).
func (h *Handler) DeleteCredential(c echo.Context) error {
	if err := h.service.DeleteCredential(c.Request().Context(), c.Param("id"), requestMeta(c)); err != nil {
		return err
	}
	return message(c, "credential deleted")
}
