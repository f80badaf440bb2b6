// Package completion talks to an OpenAI-compatible chat completion service.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/teilomillet/concierge/server/chat"
)

// FinishReasonToolCalls marks a response whose message requests tool calls.
const FinishReasonToolCalls = "tool_calls"

// Tool declares a function the model may call. Parameters is a JSON Schema
// value, typically a jsonschema.Definition.
type Tool struct {
	Name        string
	Description string
	Parameters  any
}

// Request is one chat completion call.
type Request struct {
	Model    string
	Messages []chat.Turn
	Tools    []Tool
}

// Usage reports token accounting returned by the service.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the first choice of a completion.
type Response struct {
	Message      chat.Turn
	FinishReason string
	Usage        Usage
}

// WantsTools reports whether the model asked for tool calls.
func (r *Response) WantsTools() bool {
	return r.FinishReason == FinishReasonToolCalls && len(r.Message.ToolCalls) > 0
}

// Completer produces a completion for a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var (
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("completion timed out")

	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("completion service unavailable")

	// ErrNoChoices is returned when the service answers without any choice.
	ErrNoChoices = errors.New("completion returned no choices")
)

// Error is a failure reported by the completion service.
type Error struct {
	// StatusCode is the HTTP status returned by the service, zero for
	// transport failures.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("completion failed with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("completion failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
