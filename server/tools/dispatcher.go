package tools

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/metrics"
)

const (
	// MsgFunctionNotFound is reported for tool names nobody registered.
	MsgFunctionNotFound = "sorry, function not found"
	// MsgBadArguments is reported when the model sends malformed arguments.
	MsgBadArguments = "Failed to parse tool arguments"
)

// Dispatcher runs the tool calls of one assistant turn.
type Dispatcher struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(registry *Registry, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, metrics: m, logger: logger}
}

// Registry returns the tools the dispatcher can run.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs calls one at a time in the order given and returns one tool
// turn per call, in the same order. inquiry and history are passed to every
// handler.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []chat.ToolCall, inquiry string, history []chat.Turn) []chat.Turn {
	turns := make([]chat.Turn, 0, len(calls))
	for _, call := range calls {
		result := d.run(ctx, call, inquiry, history)
		d.record(call.Function.Name, result)
		turns = append(turns, chat.ToolTurn(call, result.Encode()))
	}
	return turns
}

func (d *Dispatcher) run(ctx context.Context, call chat.ToolCall, inquiry string, history []chat.Turn) chat.ToolResult {
	logger := d.logger.With(
		zap.String("tool", call.Function.Name),
		zap.String("tool_call_id", call.ID),
	)

	// Unknown names get the not-found result whatever their arguments.
	handler, ok := d.registry.Lookup(call.Function.Name)
	if !ok {
		logger.Warn("Unknown tool requested")
		return chat.Failure(MsgFunctionNotFound, nil)
	}

	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		logger.Warn("Malformed tool arguments", zap.String("arguments", call.Function.Arguments))
		return chat.Failure(MsgBadArguments, nil)
	}

	logger.Debug("Running tool", zap.String("arguments", args))
	result := handler.Handle(ctx, Call{
		Arguments: json.RawMessage(args),
		Inquiry:   inquiry,
		Context:   history,
	})
	logger.Info("Tool finished", zap.String("status", string(result.Status)))
	return result
}

func (d *Dispatcher) record(name string, result chat.ToolResult) {
	if d.metrics == nil {
		return
	}
	if _, ok := d.registry.Lookup(name); !ok {
		name = "unknown"
	}
	d.metrics.ToolCalls.WithLabelValues(name, string(result.Status)).Inc()
}
