package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code int
		typ  string
	}{
		{"not found", NewNotFound("x"), http.StatusNotFound, TypeNotFound},
		{"validation", NewValidation("x"), http.StatusBadRequest, TypeValidation},
		{"unauthorized", NewUnauthorized("x"), http.StatusUnauthorized, TypeUnauthorized},
		{"conflict", NewConflict("x"), http.StatusConflict, TypeConflict},
		{"invalid token", NewInvalidToken(), http.StatusBadRequest, TypeInvalidToken},
		{"unavailable", NewUnavailable("x", nil), http.StatusServiceUnavailable, TypeUnavailable},
		{"internal", NewInternal(errors.New("boom")), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.typ, tt.err.Type)
		})
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("SELECT * FROM credentials failed")
	err := NewInternal(cause)

	assert.NotContains(t, SafeMessage(err), "credentials")
	assert.ErrorIs(t, err, cause)
}

func TestIsHelpers_SeeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("finding credential: %w", NewNotFound("credential not found"))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, http.StatusNotFound, SafeCode(wrapped))
}

func TestSafeCode_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, SafeCode(errors.New("plain")))
	assert.Equal(t, "an unexpected error occurred", SafeMessage(errors.New("plain")))
}

func TestInvalidToken_SingleMessage(t *testing.T) {
	assert.Equal(t, NewInvalidToken().Message, NewInvalidToken().Message)
}
