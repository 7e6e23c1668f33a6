package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/plugins/accounts"
	"github.com/keyxmakerx/rootapp/internal/plugins/audit"
	"github.com/keyxmakerx/rootapp/internal/tracing"
)

// minPasswordLen is the shortest password accepted anywhere a password is set.
const minPasswordLen = 6

var (
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)

	sessionsRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Sessions revoked by logout, password change, or admin action",
		},
	)

	passwordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_password_resets_total",
			Help: "Password reset flow steps by stage",
		},
		[]string{"stage"},
	)
)

// MailSender delivers password reset links.
type MailSender interface {
	IsConfigured() bool
	Available() bool
	SendPasswordResetEmail(ctx context.Context, to, rawToken string) error
}

// EventRecorder receives security events. Recording never fails the caller.
type EventRecorder interface {
	Record(ctx context.Context, event audit.SecurityEvent)
}

// AuthService defines the business logic contract for authentication.
// Handlers call these methods; they never touch the stores directly.
type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// Validate resolves a bearer token to its principal and session. Every
	// failure is the same 401.
	Validate(ctx context.Context, token string) (*Principal, *SessionHandle, error)

	Logout(ctx context.Context, p *Principal, session *SessionHandle, meta RequestMeta) error
	Revoke(ctx context.Context, sessionID string) error

	// RevokeOwn revokes one of accountID's sessions. Sessions belonging to
	// anyone else are reported as not found.
	RevokeOwn(ctx context.Context, accountID, sessionID string, meta RequestMeta) error

	RevokeAll(ctx context.Context, accountID string) error
	ListActive(ctx context.Context, accountID string) ([]SessionHandle, error)
	Me(ctx context.Context, p *Principal) (*MeResult, error)

	ForgotPassword(ctx context.Context, email string, meta RequestMeta) error
	ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error
	ChangePassword(ctx context.Context, p *Principal, sessionID, current, next string, meta RequestMeta) error

	// Admin operations.
	ListCredentials(ctx context.Context, page int) (*CredentialList, error)
	GetCredential(ctx context.Context, id string) (*Credential, error)
	DeleteCredential(ctx context.Context, id string, meta RequestMeta) error
}

type authService struct {
	creds    *CredentialStore
	resets   *ResetTokenIssuer
	sessions SessionStore
	accounts accounts.AccountService
	mailer   MailSender
	events   EventRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAuthService wires the session and credential core.
func NewAuthService(
	creds *CredentialStore,
	resets *ResetTokenIssuer,
	sessions SessionStore,
	accountSvc accounts.AccountService,
	mailer MailSender,
	events EventRecorder,
) AuthService {
	return &authService{
		creds:    creds,
		resets:   resets,
		sessions: sessions,
		accounts: accountSvc,
		mailer:   mailer,
		events:   events,
		tracer:   tracing.Tracer("auth"),
		now:      time.Now,
	}
}

// invalidCredentials is the single error for every failed login, whatever
// the cause.
func invalidCredentials() error {
	return apperror.NewUnauthorized("invalid credentials")
}

func unauthenticated() error {
	return apperror.NewUnauthorized("session expired or invalid")
}

// Register creates the account and then its credential. If the credential
// cannot be created the account is deleted again.
func (s *authService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer span.End()

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	// Check credential uniqueness first so the common conflict never
	// creates an account that must be compensated.
	if err := s.creds.EnsureAvailable(ctx, in.Username, in.Email); err != nil {
		return nil, err
	}

	acct, err := s.accounts.Create(ctx, accounts.CreateAccountInput{
		Handle:      in.Username,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		DisplayName: in.DisplayName,
		Email:       in.Email,
	})
	if err != nil {
		return nil, err
	}

	cred, err := s.creds.Create(ctx, CreateCredentialInput{
		Username:  in.Username,
		Email:     in.Email,
		Password:  in.Password,
		AccountID: acct.ID,
	})
	if err != nil {
		if derr := s.accounts.Delete(ctx, acct.ID); derr != nil {
			slog.Error("registration compensation failed, account orphaned",
				slog.String("account_id", acct.ID),
				slog.Any("error", derr),
			)
			recordSpanError(span, derr)
			return nil, apperror.NewInternal(fmt.Errorf("compensating account %s: %w", acct.ID, derr))
		}
		return nil, err
	}

	s.record(ctx, audit.EventRegistered, acct.ID, in.Meta, nil)
	slog.Info("account registered",
		slog.String("account_id", acct.ID),
		slog.String("credential_id", cred.ID),
	)

	return &RegisterResult{Account: acct, Credential: cred}, nil
}

// Login verifies a username or email and password and starts a session.
func (s *authService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer span.End()

	meta := RequestMeta{IPAddress: in.IPAddress, UserAgent: in.UserAgent}

	cred, err := s.creds.FindByLoginKey(ctx, in.LoginKey)
	if err != nil && !apperror.IsNotFound(err) {
		recordSpanError(span, err)
		return nil, err
	}

	ok, err := s.creds.VerifyPassword(cred, in.Password)
	if err != nil {
		slog.Error("stored password hash is unusable",
			slog.String("credential_id", cred.ID),
			slog.Any("error", err),
		)
	}
	if !ok {
		return nil, s.loginFailed(ctx, cred, meta, "bad_password")
	}

	active, err := s.accounts.IsActive(ctx, cred.AccountID)
	if err != nil {
		recordSpanError(span, err)
		return nil, apperror.NewInternal(err)
	}
	if !active {
		return nil, s.loginFailed(ctx, cred, meta, "account_inactive")
	}

	p := Principal{
		AccountID:    cred.AccountID,
		CredentialID: cred.ID,
		Username:     cred.Username,
		Email:        cred.Email,
	}
	token, handle, err := s.sessions.Create(ctx, p, meta)
	if err != nil {
		recordSpanError(span, err)
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}
	span.SetAttributes(attribute.String("account_id", p.AccountID))

	if err := s.accounts.UpdateLastLogin(ctx, p.AccountID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("account_id", p.AccountID),
			slog.Any("error", err),
		)
	}

	if s.creds.NeedsRehash(cred) {
		if _, err := s.creds.UpdatePassword(ctx, cred.ID, in.Password); err != nil {
			slog.Warn("failed to upgrade password hash",
				slog.String("credential_id", cred.ID),
				slog.Any("error", err),
			)
		}
	}

	loginAttempts.WithLabelValues("success").Inc()
	s.record(ctx, audit.EventLoginSuccess, p.AccountID, meta, map[string]any{"session_id": handle.ID})
	slog.Info("login succeeded",
		slog.String("account_id", p.AccountID),
		slog.String("session_id", handle.ID),
	)

	return &LoginResult{Token: token, Principal: p, Session: handle}, nil
}

func (s *authService) loginFailed(ctx context.Context, cred *Credential, meta RequestMeta, reason string) error {
	loginAttempts.WithLabelValues("failure").Inc()

	var accountID string
	if cred != nil {
		accountID = cred.AccountID
	}
	s.record(ctx, audit.EventLoginFailed, accountID, meta, map[string]any{"reason": reason})
	return invalidCredentials()
}

func (s *authService) Validate(ctx context.Context, token string) (*Principal, *SessionHandle, error) {
	ctx, span := s.tracer.Start(ctx, "auth.Validate")
	defer span.End()

	if token == "" {
		return nil, nil, unauthenticated()
	}

	h, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if !isSessionInvalid(err) {
			slog.Warn("session lookup failed", slog.Any("error", err))
			recordSpanError(span, err)
		}
		return nil, nil, unauthenticated()
	}

	cred, err := s.creds.FindByID(ctx, h.CredentialID)
	if err != nil {
		if !apperror.IsNotFound(err) {
			slog.Warn("credential lookup failed", slog.String("session_id", h.ID), slog.Any("error", err))
		}
		return nil, nil, unauthenticated()
	}
	if cred.AccountID != h.AccountID {
		return nil, nil, unauthenticated()
	}

	active, err := s.accounts.IsActive(ctx, h.AccountID)
	if err != nil {
		slog.Warn("account lookup failed", slog.String("account_id", h.AccountID), slog.Any("error", err))
		return nil, nil, unauthenticated()
	}
	if !active {
		return nil, nil, unauthenticated()
	}

	now := s.now().UTC()
	if err := s.sessions.Touch(ctx, h); err != nil {
		slog.Warn("failed to touch session", slog.String("session_id", h.ID), slog.Any("error", err))
	}
	h.LastActiveAt = now
	if err := s.creds.Touch(ctx, cred.ID, now); err != nil {
		slog.Warn("failed to touch credential", slog.String("credential_id", cred.ID), slog.Any("error", err))
	}

	return &Principal{
		AccountID:    cred.AccountID,
		CredentialID: cred.ID,
		Username:     cred.Username,
		Email:        cred.Email,
	}, h, nil
}

func (s *authService) Logout(ctx context.Context, p *Principal, h *SessionHandle, meta RequestMeta) error {
	if err := s.Revoke(ctx, h.ID); err != nil {
		return err
	}
	s.record(ctx, audit.EventLogout, p.AccountID, meta, map[string]any{"session_id": h.ID})
	return nil
}

func (s *authService) Revoke(ctx context.Context, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return apperror.NewInternal(err)
	}
	sessionsRevoked.Inc()
	return nil
}

func (s *authService) RevokeOwn(ctx context.Context, accountID, sessionID string, meta RequestMeta) error {
	active, err := s.ListActive(ctx, accountID)
	if err != nil {
		return err
	}

	for _, h := range active {
		if h.ID == sessionID {
			if err := s.Revoke(ctx, sessionID); err != nil {
				return err
			}
			s.record(ctx, audit.EventSessionRevoked, accountID, meta, map[string]any{"session_id": sessionID})
			return nil
		}
	}
	return apperror.NewNotFound("session not found")
}

func (s *authService) RevokeAll(ctx context.Context, accountID string) error {
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		return apperror.NewInternal(err)
	}
	return nil
}

func (s *authService) ListActive(ctx context.Context, accountID string) ([]SessionHandle, error) {
	list, err := s.sessions.ListActive(ctx, accountID)
	if errors.Is(err, ErrListingUnsupported) {
		return nil, apperror.NewBadRequest(ErrListingUnsupported.Error())
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

func (s *authService) Me(ctx context.Context, p *Principal) (*MeResult, error) {
	acct, err := s.accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	return &MeResult{Principal: *p, Account: acct}, nil
}

// ForgotPassword emails a reset link if the address belongs to a
// credential. The outcome for the caller is the same either way.
func (s *authService) ForgotPassword(ctx context.Context, email string, meta RequestMeta) error {
	ctx, span := s.tracer.Start(ctx, "auth.ForgotPassword")
	defer span.End()

	if !s.mailer.IsConfigured() {
		return apperror.NewBadRequest("password reset email is not configured")
	}
	if !s.mailer.Available() {
		return apperror.NewUnavailable("password reset email is temporarily unavailable, try again later", nil)
	}

	cred, err := s.creds.FindByEmail(ctx, email)
	if apperror.IsNotFound(err) {
		return nil
	}
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	raw, err := s.resets.Issue(ctx, cred)
	if err != nil {
		recordSpanError(span, err)
		return err
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, cred.Email, raw); err != nil {
		slog.Error("failed to send password reset email",
			slog.String("credential_id", cred.ID),
			slog.Any("error", err),
		)
		recordSpanError(span, err)
		if cerr := s.resets.Clear(ctx, cred); cerr != nil {
			slog.Warn("failed to clear unsent reset token",
				slog.String("credential_id", cred.ID),
				slog.Any("error", cerr),
			)
		}
		return nil
	}

	passwordResets.WithLabelValues("requested").Inc()
	s.record(ctx, audit.EventPasswordResetRequested, cred.AccountID, meta, nil)
	return nil
}

// ResetPassword consumes a reset token and signs the account out everywhere.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	ctx, span := s.tracer.Start(ctx, "auth.ResetPassword")
	defer span.End()

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	cred, err := s.resets.Consume(ctx, token, newPassword)
	if err != nil {
		return err
	}

	if err := s.sessions.RevokeAll(ctx, cred.AccountID); err != nil {
		slog.Warn("failed to revoke sessions after password reset",
			slog.String("account_id", cred.AccountID),
			slog.Any("error", err),
		)
	}

	passwordResets.WithLabelValues("completed").Inc()
	s.record(ctx, audit.EventPasswordResetCompleted, cred.AccountID, meta, nil)
	slog.Info("password reset completed", slog.String("account_id", cred.AccountID))
	return nil
}

// ChangePassword replaces the password after checking the current one and
// revokes every other session of the account.
func (s *authService) ChangePassword(ctx context.Context, p *Principal, sessionID, current, next string, meta RequestMeta) error {
	if err := validatePassword(next); err != nil {
		return err
	}

	cred, err := s.creds.FindByID(ctx, p.CredentialID)
	if err != nil {
		return err
	}

	ok, err := s.creds.VerifyPassword(cred, current)
	if err != nil {
		return apperror.NewInternal(err)
	}
	if !ok {
		return apperror.NewValidation("current password is incorrect")
	}

	if _, err := s.creds.UpdatePassword(ctx, cred.ID, next); err != nil {
		return err
	}

	s.revokeOthers(ctx, p.AccountID, sessionID)
	s.record(ctx, audit.EventPasswordChanged, p.AccountID, meta, nil)
	return nil
}

// revokeOthers revokes every session of accountID except keep.
func (s *authService) revokeOthers(ctx context.Context, accountID, keep string) {
	if err := s.sessions.RevokeOthers(ctx, accountID, keep); err != nil {
		slog.Warn("failed to revoke other sessions",
			slog.String("account_id", accountID),
			slog.Any("error", err),
		)
	}
}

func (s *authService) ListCredentials(ctx context.Context, page int) (*CredentialList, error) {
	return s.creds.List(ctx, page)
}

func (s *authService) GetCredential(ctx context.Context, id string) (*Credential, error) {
	return s.creds.FindByID(ctx, id)
}

// DeleteCredential removes a credential, then the account it belongs to,
// then every session of that account. A credential whose account is
// already gone is still deleted.
func (s *authService) DeleteCredential(ctx context.Context, id string, meta RequestMeta) error {
	cred, err := s.creds.Delete(ctx, id)
	if err != nil {
		return err
	}

	if err := s.accounts.Delete(ctx, cred.AccountID); err != nil && !apperror.IsNotFound(err) {
		return apperror.NewInternal(fmt.Errorf("deleting account %s: %w", cred.AccountID, err))
	}

	if err := s.sessions.RevokeAll(ctx, cred.AccountID); err != nil {
		slog.Warn("failed to revoke sessions of deleted account",
			slog.String("account_id", cred.AccountID),
			slog.Any("error", err),
		)
	}

	s.record(ctx, audit.EventCredentialDeleted, cred.AccountID, meta, map[string]any{
		"credential_id": cred.ID,
		"username":      cred.Username,
	})
	slog.Info("credential deleted",
		slog.String("credential_id", cred.ID),
		slog.String("account_id", cred.AccountID),
	)
	return nil
}

func (s *authService) record(ctx context.Context, eventType, accountID string, meta RequestMeta, details map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Record(ctx, audit.SecurityEvent{
		EventType: eventType,
		AccountID: accountID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   details,
	})
}

func validatePassword(raw string) error {
	if len(raw) < minPasswordLen {
		return apperror.NewValidation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
