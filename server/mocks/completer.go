package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
)

// MockCompleter implements completion.Completer for tests without calling
// a real completion service. Every request is recorded.
//
// Example usage:
//
//	mock := NewMockCompleter(func(ctx context.Context, req completion.Request) (*completion.Response, error) {
//	    return mocks.Reply("mocked response"), nil
//	})
type MockCompleter struct {
	CompleteFunc func(context.Context, completion.Request) (*completion.Response, error)

	mu    sync.Mutex
	calls []completion.Request
}

var _ completion.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a mock driven by fn. A nil fn answers every
// request with an empty assistant reply.
func NewMockCompleter(fn func(context.Context, completion.Request) (*completion.Response, error)) *MockCompleter {
	return &MockCompleter{CompleteFunc: fn}
}

// NewScriptedCompleter answers requests with responses in order and fails
// once they run out.
func NewScriptedCompleter(responses ...*completion.Response) *MockCompleter {
	m := &MockCompleter{}
	m.CompleteFunc = func(ctx context.Context, req completion.Request) (*completion.Response, error) {
		n := m.CallCount()
		if n > len(responses) {
			return nil, fmt.Errorf("unexpected completion call %d", n)
		}
		return responses[n-1], nil
	}
	return m
}

// Complete records req and delegates to CompleteFunc.
func (m *MockCompleter) Complete(ctx context.Context, req completion.Request) (*completion.Response, error) {
	m.mu.Lock()
	recorded := req
	recorded.Messages = append([]chat.Turn(nil), req.Messages...)
	recorded.Tools = append([]completion.Tool(nil), req.Tools...)
	m.calls = append(m.calls, recorded)
	m.mu.Unlock()

	if m.CompleteFunc == nil {
		return Reply(""), nil
	}
	return m.CompleteFunc(ctx, req)
}

// Calls returns the requests seen so far.
func (m *MockCompleter) Calls() []completion.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]completion.Request(nil), m.calls...)
}

// CallCount returns how many requests were made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// BreakerState satisfies the health check interface.
func (m *MockCompleter) BreakerState() string {
	return "closed"
}

// Reply builds a final assistant response.
func Reply(text string) *completion.Response {
	return &completion.Response{
		Message:      chat.Turn{Role: chat.RoleAssistant, Content: chat.Text(text)},
		FinishReason: "stop",
	}
}

// ToolCallReply builds a response requesting the given tool calls.
func ToolCallReply(calls ...chat.ToolCall) *completion.Response {
	return &completion.Response{
		Message:      chat.Turn{Role: chat.RoleAssistant, ToolCalls: calls},
		FinishReason: completion.FinishReasonToolCalls,
	}
}

// ToolCall builds a function tool call.
func ToolCall(id, name, arguments string) chat.ToolCall {
	return chat.ToolCall{
		ID:       id,
		Type:     "function",
		Function: chat.FunctionCall{Name: name, Arguments: arguments},
	}
}
