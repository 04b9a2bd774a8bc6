package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewNetworkError marks a failure to reach the message store. It is always
// retryable: callers queue the work instead of surfacing it.
func NewNetworkError(operation string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNetworkFailure, fmt.Sprintf("%s: store unreachable", operation)).
		WithContext("operation", operation).
		WithUserMessage("Could not reach the server")
}

// NewUpstreamError wraps a failure of a third-party API. Upstream errors are
// surfaced to the caller unchanged and never retried.
func NewUpstreamError(service string, statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeUpstreamService, fmt.Sprintf("%s call failed", service)).
		WithContext("service", service).
		WithUserMessage(fmt.Sprintf("%s is unavailable", service))
	if statusCode > 0 {
		appErr = appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage(reason)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// NewUploadError creates an upload handling error
func NewUploadError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeUpload, fmt.Sprintf("upload %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Image upload failed")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusRequestTimeout
	case ErrCodeUpstreamService:
		return http.StatusBadGateway
	case ErrCodeNetworkFailure, ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the standardized error body returned by the API
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "password" && k != "token" && k != "secret" && k != "otp" && k != "phone" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}
	return response
}
