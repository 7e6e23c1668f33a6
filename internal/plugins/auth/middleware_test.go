package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/keyxmakerx/rootapp/internal/apperror"
	"github.com/keyxmakerx/rootapp/internal/middleware"
)

// stubService overrides Validate; every other method panics if called.
type stubService struct {
	AuthService
	validateFn func(ctx context.Context, token string) (*Principal, *SessionHandle, error)
}

func (s *stubService) Validate(ctx context.Context, token string) (*Principal, *SessionHandle, error) {
	return s.validateFn(ctx, token)
}

func TestRequireAuth(t *testing.T) {
	svc := &stubService{validateFn: func(_ context.Context, token string) (*Principal, *SessionHandle, error) {
		if token != "good" {
			return nil, nil, apperror.NewUnauthorized("session expired or invalid")
		}
		return &Principal{AccountID: "acc-1", Username: "alice"}, &SessionHandle{ID: "s1"}, nil
	}}

	handler := RequireAuth(svc)(func(c echo.Context) error {
		assert.Equal(t, "alice", GetPrincipal(c).Username)
		assert.Equal(t, "s1", GetSession(c).ID)
		assert.Equal(t, "acc-1", GetAccountID(c))
		assert.Equal(t, "acc-1", middleware.AccountIDFromContext(c.Request().Context()))
		return c.NoContent(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized},
		{"invalid token", "Bearer bad", http.StatusUnauthorized},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()

			err := handler(e.NewContext(req, rec))
			assert.NoError(t, err)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized","message":"please authenticate"}`, rec.Body.String())
			}
		})
	}
}

func TestGetters_Unauthenticated(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Nil(t, GetPrincipal(c))
	assert.Nil(t, GetSession(c))
	assert.Empty(t, GetAccountID(c))
}
