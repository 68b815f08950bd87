package errors

import (
	"fmt"
	"net/http"
	"time"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewInputError creates a plain bad-request error whose message is shown verbatim
func NewInputError(message string) *AppError {
	return New(ErrCodeInvalidInput, message).WithUserMessage(message)
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found: %s", resource, identifier))
}

// NewFormatError reports a blob that is not a JSON array or object
func NewFormatError(name string, err error) *AppError {
	return Wrap(err, ErrCodeInvalidFormat, "invalid JSON format").
		WithContext("file", name).
		WithUserMessage(fmt.Sprintf("Invalid JSON format in %s", name))
}

// NewStorageError wraps a filesystem failure
func NewStorageError(operation, name string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithContext("file", name).
		WithUserMessage("File operation failed")
}

// NewTooLargeError reports a blob over the configured size ceiling
func NewTooLargeError(name string, size, limit int64) *AppError {
	return New(ErrCodeFileTooLarge, "file exceeds size limit").
		WithContext("file", name).
		WithContext("size", size).
		WithContext("limit", limit).
		WithUserMessage(fmt.Sprintf("File too large: %s", name))
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Too many requests, please try again later")
}

// HTTPStatusCode maps error codes to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		// INVALID_FORMAT is a server-side data problem, not a client one
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the error envelope written by every endpoint
type HTTPErrorResponse struct {
	Success   bool        `json:"success"`
	Type      string      `json:"type"`
	Message   string      `json:"message"`
	Code      ErrorCode   `json:"code"`
	Context   interface{} `json:"context,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// ToHTTPResponse converts an error to the error envelope
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		Type:      "error",
		Code:      GetCode(err),
		Message:   GetUserMessage(err),
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if appErr, ok := As(err); ok && len(appErr.Context) > 0 && response.Code != ErrCodeStorage {
		public := make(map[string]interface{}, len(appErr.Context))
		for k, v := range appErr.Context {
			// value echoes client input, keep it out of responses
			if k != "value" && k != "path" {
				public[k] = v
			}
		}
		if len(public) > 0 {
			response.Context = public
		}
	}

	return response
}
