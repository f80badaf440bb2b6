package errors

import (
	"net/http"
)

// NewError creates a ConciergeError with full control over its fields.
// Prefer the specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "template render failed", 500, "req_123", nil, tmplErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *ConciergeError {
	return &ConciergeError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewBadRequestError is returned when an inquiry payload is missing required
// fields or cannot be decoded. No downstream work is performed.
//
// Example:
//
//	err := NewBadRequestError("req_123", map[string]interface{}{"field": "previous"})
func NewBadRequestError(requestID string, details map[string]interface{}) *ConciergeError {
	return &ConciergeError{
		Type:      BadRequestError,
		Message:   "Bad request",
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   details,
	}
}

// NewProviderError reports a failed completion call.
//
// Example:
//
//	err := NewProviderError("req_123", "Completion service failed", apiErr)
func NewProviderError(requestID string, message string, err error) *ConciergeError {
	return &ConciergeError{
		Type:      ProviderError,
		Message:   message,
		Code:      http.StatusBadGateway,
		RequestID: requestID,
		err:       err,
	}
}

// NewTimeoutError reports a completion call that exceeded its deadline.
func NewTimeoutError(requestID string, err error) *ConciergeError {
	return &ConciergeError{
		Type:      TimeoutError,
		Message:   "Completion service timed out",
		Code:      http.StatusGatewayTimeout,
		RequestID: requestID,
		err:       err,
	}
}

// NewUnavailableError reports that the completion service is short-circuited.
func NewUnavailableError(requestID string, err error) *ConciergeError {
	return &ConciergeError{
		Type:      UnavailableError,
		Message:   "Completion service temporarily unavailable",
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		err:       err,
		Details: map[string]interface{}{
			"suggestion": "Please retry shortly",
		},
	}
}

// NewInternalError creates an internal server error with appropriate defaults.
// Use this for unexpected errors that are not covered by other error types:
//   - Panics
//   - Prompt template failures
//   - Response encoding failures
func NewInternalError(requestID string, err error) *ConciergeError {
	return &ConciergeError{
		Type:      InternalError,
		Message:   "An unexpected error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(requestID string, path string) *ConciergeError {
	return &ConciergeError{
		Type:      NotFoundError,
		Message:   "Resource not found",
		Code:      http.StatusNotFound,
		RequestID: requestID,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}
