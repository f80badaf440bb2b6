// Package errors provides the error envelope used by the concierge HTTP surface.
// It includes structured error types, JSON response formatting, request ID tracking,
// and integrated logging with Uber's zap logger.
//
// Every failure that reaches a client is rendered as:
//
//	{"type": "bad_request", "message": "Bad request", "request_id": "...", "details": {...}}
//
// Handlers build errors with the constructors in types.go and render them
// with WriteError:
//
//	err := errors.NewBadRequestError(requestID, map[string]interface{}{
//	    "field": "inquiry",
//	    "error": "required",
//	})
//	errors.WriteError(w, err)
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// A nil logger is ignored.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType categorizes failures for clients.
type ErrorType string

const (
	// BadRequestError represents a missing or malformed inquiry payload
	BadRequestError ErrorType = "bad_request"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"

	// ProviderError represents a failed call to the completion service
	ProviderError ErrorType = "provider_error"

	// TimeoutError represents a completion call that ran past its deadline
	TimeoutError ErrorType = "timeout_error"

	// UnavailableError represents a completion service that is short-circuited
	UnavailableError ErrorType = "unavailable_error"

	// NotFoundError represents unknown routes
	NotFoundError ErrorType = "not_found"
)

// ConciergeError implements the error interface and carries the context
// needed to render a JSON error response. The wrapped error is kept for
// logging and never serialized.
type ConciergeError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	err error
}

// Error implements the error interface.
func (e *ConciergeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConciergeError) Unwrap() error {
	return e.err
}

// Is matches on Type only, so errors.Is(err, &ConciergeError{Type: TimeoutError})
// works regardless of message or request ID.
func (e *ConciergeError) Is(target error) bool {
	t, ok := target.(*ConciergeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError writes err as a JSON response with err.Code as the status.
func WriteError(w http.ResponseWriter, err *ConciergeError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	if encErr := json.NewEncoder(w).Encode(err); encErr != nil {
		DefaultLogger.Error("failed to encode error response",
			zap.Error(encErr),
			zap.String("request_id", err.RequestID),
		)
	}
}
