package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrUnauthorized,
		ErrForbidden, ErrTooManyRequests, ErrInternal, ErrConflict,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("pool exhausted")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}

	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "pool exhausted")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "session not found"}
	assert.Equal(t, "NOT_FOUND: session not found", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := NotFound("wallet", "abc-123")
	assert.True(t, errors.Is(appErr, ErrNotFound))
}

func TestAppError_Unwrap_Nil(t *testing.T) {
	appErr := &AppError{Code: "TEST", Message: "test"}
	assert.Nil(t, appErr.Unwrap())
}

// --- Constructor functions ---

func TestNotFound(t *testing.T) {
	err := NotFound("user", "IND004237")

	require.NotNil(t, err)
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.Contains(t, err.Message, "user")
	assert.Contains(t, err.Message, "IND004237")
}

func TestAlreadyExists(t *testing.T) {
	err := AlreadyExists("user", "email", "a@b.io")

	assert.Equal(t, "ALREADY_EXISTS", err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Contains(t, err.Message, `"a@b.io"`)
}

func TestTooManyRequests_CarriesCustomCode(t *testing.T) {
	err := TooManyRequests("OTP_RATE_LIMITED", "too many codes requested")

	assert.Equal(t, "OTP_RATE_LIMITED", err.Code)
	assert.Equal(t, http.StatusTooManyRequests, err.Status)
	assert.True(t, errors.Is(err, ErrTooManyRequests))
}

func TestWithCode(t *testing.T) {
	err := WithCode("CSRF_MISMATCH", "csrf token mismatch", http.StatusForbidden, ErrForbidden)

	assert.Equal(t, "CSRF_MISMATCH", err.Code)
	assert.Equal(t, http.StatusForbidden, err.Status)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestInternal_HidesDetail(t *testing.T) {
	err := Internal(fmt.Errorf("pq: relation does not exist"))

	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

// --- HTTPStatus mapping ---

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", Unauthorized("nope"), http.StatusUnauthorized},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"wrapped conflict", fmt.Errorf("insert: %w", ErrAlreadyExists), http.StatusConflict},
		{"wrapped invalid input", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"wrapped rate limit", fmt.Errorf("otp: %w", ErrTooManyRequests), http.StatusTooManyRequests},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
