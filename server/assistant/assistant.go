// Package assistant runs the inquiry workflow: build the conversation, ask
// the completion service, run at most one round of tool calls and return
// the final assistant turn.
package assistant

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/metrics"
	"github.com/teilomillet/concierge/server/prompt"
	"github.com/teilomillet/concierge/server/tools"
)

// Inquiry is one customer turn together with the conversation so far.
type Inquiry struct {
	Text    string
	History []chat.Turn
	Images  []chat.ImageRef
}

// Options selects models and history handling.
type Options struct {
	ChatModel    string
	VisionModel  string
	HistoryLimit int
	ReofferTools bool
}

// TokenCounter estimates the prompt size of a conversation.
type TokenCounter interface {
	CountTurns(turns []chat.Turn) int
}

// Assistant holds the collaborators of the workflow. It keeps no
// conversation state between calls.
type Assistant struct {
	completer  completion.Completer
	prompts    *prompt.Assembler
	dispatcher *tools.Dispatcher
	opts       Options
	counter    TokenCounter
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// New creates an Assistant. m may be nil.
func New(completer completion.Completer, prompts *prompt.Assembler, dispatcher *tools.Dispatcher, opts Options, m *metrics.Metrics, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		completer:  completer,
		prompts:    prompts,
		dispatcher: dispatcher,
		opts:       opts,
		metrics:    m,
		logger:     logger,
	}
}

// SetTokenCounter enables prompt token accounting.
func (a *Assistant) SetTokenCounter(c TokenCounter) {
	a.counter = c
}

// Respond answers inq. Completion failures are returned as errors from the
// completion package; tool failures are reported to the model instead.
func (a *Assistant) Respond(ctx context.Context, inq Inquiry) (*chat.Turn, error) {
	history := chat.Recent(inq.History, a.opts.HistoryLimit)
	hasImage := len(inq.Images) > 0

	system, err := a.prompts.SystemPrompt(hasImage)
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}

	messages := make([]chat.Turn, 0, len(history)+4)
	messages = append(messages, chat.SystemTurn(system))
	messages = append(messages, history...)
	messages = append(messages, userTurn(inq.Text, inq.Images))

	req := completion.Request{Messages: messages}
	if hasImage {
		req.Model = a.opts.VisionModel
	} else {
		req.Model = a.opts.ChatModel
		req.Tools = a.dispatcher.Registry().Declarations()
	}

	logger := a.logger.With(
		zap.String("model", req.Model),
		zap.Bool("has_image", hasImage),
		zap.Int("history", len(history)),
		zap.String("prompts_version", a.prompts.Version()),
	)

	resp, err := a.complete(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	if !resp.WantsTools() {
		return &resp.Message, nil
	}

	logger.Info("Model requested tools", zap.Int("tool_calls", len(resp.Message.ToolCalls)))
	toolTurns := a.dispatcher.Dispatch(ctx, resp.Message.ToolCalls, inq.Text, history)

	followUp := completion.Request{
		Model:    req.Model,
		Messages: make([]chat.Turn, 0, len(messages)+1+len(toolTurns)),
	}
	followUp.Messages = append(followUp.Messages, messages...)
	followUp.Messages = append(followUp.Messages, resp.Message)
	followUp.Messages = append(followUp.Messages, toolTurns...)
	if a.opts.ReofferTools {
		followUp.Tools = req.Tools
	}

	final, err := a.complete(ctx, followUp, logger)
	if err != nil {
		return nil, err
	}
	if final.WantsTools() {
		// Only one round trip is performed; the client sees the request as-is.
		logger.Warn("Model requested tools again after the tool round trip")
	}
	return &final.Message, nil
}

func (a *Assistant) complete(ctx context.Context, req completion.Request, logger *zap.Logger) (*completion.Response, error) {
	if a.counter != nil {
		tokens := a.counter.CountTurns(req.Messages)
		if a.metrics != nil {
			a.metrics.PromptTokens.Observe(float64(tokens))
		}
		logger.Debug("Prompt size", zap.Int("estimated_tokens", tokens), zap.Int("tools", len(req.Tools)))
	}
	return a.completer.Complete(ctx, req)
}

// userTurn is plain text without images; with images it is the text part
// followed by one image part per image, in order.
func userTurn(text string, images []chat.ImageRef) chat.Turn {
	if len(images) == 0 {
		return chat.UserTurn(chat.Text(text))
	}
	parts := make([]chat.Part, 0, len(images)+1)
	parts = append(parts, chat.TextPart(text))
	for _, img := range images {
		parts = append(parts, chat.ImagePart(string(img)))
	}
	return chat.UserTurn(chat.Multi(parts...))
}
