package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeInvalidConfig,
				Message: "configuration is invalid",
			},
			expected: "INVALID_CONFIG: configuration is invalid",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeDatabaseConnection,
				Message: "failed to connect to database",
				Cause:   errors.New("connection refused"),
			},
			expected: "DATABASE_CONNECTION: failed to connect to database: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternalError, "something went wrong")

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestAppError_WithContext(t *testing.T) {
	err := New(ErrCodeValidationFailed, "validation failed")

	result := err.WithContext("field", "name").WithContext("value", "")

	assert.Equal(t, err, result)
	assert.Len(t, err.Context, 2)
	assert.Equal(t, "name", err.Context["field"])
}

func TestClassifiersSeeThroughWrapping(t *testing.T) {
	notFound := NewNotFoundError("message", "m1")
	wrapped := fmt.Errorf("pin failed: %w", notFound)

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, ErrCodeNotFound, GetCode(wrapped))

	network := NewNetworkError("create message", errors.New("dial tcp: connection refused"))
	assert.True(t, IsNetworkFailure(fmt.Errorf("send: %w", network)))
	assert.True(t, IsRetryable(network))

	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNetworkFailure(errors.New("plain")))
	assert.Equal(t, ErrCodeInternalError, GetCode(errors.New("plain")))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", NewValidationError("name", "", "name is required"), http.StatusBadRequest},
		{"not found", NewNotFoundError("message", "x"), http.StatusNotFound},
		{"upstream", NewUpstreamError("plant.id", 500, errors.New("boom")), http.StatusBadGateway},
		{"database", NewDatabaseError("insert", errors.New("locked")), http.StatusServiceUnavailable},
		{"rate limit", NewRateLimitError(5, "1s"), http.StatusTooManyRequests},
		{"plain", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestToHTTPResponse(t *testing.T) {
	err := NewValidationError("name", "", "name is required").WithContext("otp", "1234")

	resp := ToHTTPResponse(err, "req_1")

	assert.Equal(t, "req_1", resp.RequestID)
	assert.Equal(t, ErrCodeValidationFailed, resp.Error.Code)
	assert.Equal(t, "Invalid name: name is required", resp.Error.Message)
	ctx, ok := resp.Error.Context.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "name", ctx["field"])
	assert.NotContains(t, ctx, "otp")

	plain := ToHTTPResponse(errors.New("oops"), "")
	assert.Equal(t, ErrCodeInternalError, plain.Error.Code)
	assert.Equal(t, "An internal error occurred", plain.Error.Message)
}

func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "Invalid OTP", GetUserMessage(NewAuthError("Invalid OTP")))
	assert.Equal(t, "text too long", GetUserMessage(New(ErrCodeInvalidInput, "text too long")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(New(ErrCodeDatabaseQuery, "select failed")))
	assert.Equal(t, "An internal error occurred", GetUserMessage(assert.AnError))
}
