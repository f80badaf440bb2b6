package errors

import (
	"context"
	"errors"
	"testing"
)

func TestConciergeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ConciergeError
		want string
	}{
		{
			name: "basic error without wrapped error",
			err: &ConciergeError{
				Type:    BadRequestError,
				Message: "Bad request",
			},
			want: "bad_request: Bad request",
		},
		{
			name: "error with wrapped error",
			err: &ConciergeError{
				Type:    ProviderError,
				Message: "Completion service failed",
				err:     errors.New("connection reset"),
			},
			want: "provider_error: Completion service failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("ConciergeError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConciergeError_Is(t *testing.T) {
	err1 := &ConciergeError{Type: TimeoutError, Message: "test1"}
	err2 := &ConciergeError{Type: TimeoutError, Message: "test2"}
	err3 := &ConciergeError{Type: ProviderError, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Expected err1.Is(err2) to be true for same error type")
	}

	if err1.Is(err3) {
		t.Error("Expected err1.Is(err3) to be false for different error types")
	}

	if !errors.Is(NewTimeoutError("r", nil), &ConciergeError{Type: TimeoutError}) {
		t.Error("Expected errors.Is to match on type")
	}
}

func TestConciergeError_Unwrap(t *testing.T) {
	err := NewTimeoutError("r", context.DeadlineExceeded)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected wrapped deadline error, got %v", err.Unwrap())
	}
}
