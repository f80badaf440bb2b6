package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teilomillet/concierge/config"
	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/metrics"
	"github.com/teilomillet/concierge/server/mocks"
	"github.com/teilomillet/concierge/server/prompt"
	"github.com/teilomillet/concierge/server/tools"
)

const (
	chatModel   = "chat-model"
	visionModel = "vision-model"
)

type fixture struct {
	completer *mocks.MockCompleter
	assistant *Assistant
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, completer *mocks.MockCompleter, opts ...func(*Options)) *fixture {
	t.Helper()
	p := config.PromptConfig{
		Version:       "test",
		System:        "SYSTEM.",
		Vision:        " VISION.",
		ImageAnalysis: "ANALYZE.",
		Today:         " Today is {{.Today}}.",
		DateLayout:    "2006-01-02",
	}
	templates, err := prompt.Compile(p)
	require.NoError(t, err)
	assembler := prompt.NewAssembler(templates, func() time.Time {
		return time.Date(2024, time.March, 14, 0, 0, 0, 0, time.UTC)
	})

	logger := zaptest.NewLogger(t)
	resolver, err := tools.NewImageResolver(t.TempDir(), nil, logger)
	require.NoError(t, err)
	analyzer := tools.NewImageAnalyzer(completer, assembler, resolver, visionModel, logger)
	m := metrics.NewMetrics()
	dispatcher := tools.NewDispatcher(tools.NewRegistry(analyzer), m, logger)

	o := Options{ChatModel: chatModel, VisionModel: visionModel, HistoryLimit: 20}
	for _, fn := range opts {
		fn(&o)
	}
	return &fixture{
		completer: completer,
		assistant: New(completer, assembler, dispatcher, o, m, logger),
		metrics:   m,
	}
}

func history(n int) []chat.Turn {
	turns := make([]chat.Turn, n)
	for i := range turns {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		turns[i] = chat.Turn{Role: role, Content: chat.Text(fmt.Sprintf("turn %d", i))}
	}
	return turns
}

func TestRespondTextOnly(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(mocks.Reply("A suit is $15.")))

	reply, err := f.assistant.Respond(context.Background(), Inquiry{
		Text:    "How much for a suit?",
		History: history(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "A suit is $15.", reply.Content.Text)

	calls := f.completer.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, chatModel, req.Model)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, tools.ImageAnalysisTool, req.Tools[0].Name)

	require.Len(t, req.Messages, 4)
	assert.Equal(t, chat.SystemTurn("SYSTEM. Today is 2024-03-14."), req.Messages[0])
	assert.Equal(t, history(2), req.Messages[1:3])
	assert.Equal(t, chat.UserTurn(chat.Text("How much for a suit?")), req.Messages[3])
}

func TestRespondWithImages(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(mocks.Reply("That looks like coffee.")))

	_, err := f.assistant.Respond(context.Background(), Inquiry{
		Text:   "What stain is this?",
		Images: []chat.ImageRef{"data:image/png;base64,AA==", "https://cdn.example.com/b.jpg"},
	})
	require.NoError(t, err)

	req := f.completer.Calls()[0]
	assert.Equal(t, visionModel, req.Model)
	assert.Empty(t, req.Tools)
	assert.Equal(t, "SYSTEM. VISION. Today is 2024-03-14.", req.Messages[0].Content.Text)

	user := req.Messages[len(req.Messages)-1]
	assert.Equal(t, chat.Multi(
		chat.TextPart("What stain is this?"),
		chat.ImagePart("data:image/png;base64,AA=="),
		chat.ImagePart("https://cdn.example.com/b.jpg"),
	), user.Content)
}

func TestRespondTruncatesHistory(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(mocks.Reply("ok")))

	_, err := f.assistant.Respond(context.Background(), Inquiry{Text: "hi", History: history(25)})
	require.NoError(t, err)

	msgs := f.completer.Calls()[0].Messages
	require.Len(t, msgs, 22)
	assert.Equal(t, history(25)[5:], msgs[1:21])
}

func TestRespondToolRoundTrip(t *testing.T) {
	call := mocks.ToolCall("call_1", tools.ImageAnalysisTool,
		`{"query": "What stain is this?", "images": ["data:image/png;base64,AA=="]}`)
	f := newFixture(t, mocks.NewScriptedCompleter(
		mocks.ToolCallReply(call),
		mocks.Reply("It is a wine stain on silk."),
		mocks.Reply("That wine stain will cost about $12 to remove."),
	))

	reply, err := f.assistant.Respond(context.Background(), Inquiry{
		Text:    "Can you check the photo I sent?",
		History: history(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "That wine stain will cost about $12 to remove.", reply.Content.Text)

	calls := f.completer.Calls()
	require.Len(t, calls, 3, "first completion, image analysis, follow-up")

	analysis := calls[1]
	assert.Equal(t, visionModel, analysis.Model)
	assert.Empty(t, analysis.Tools)

	followUp := calls[2]
	assert.Equal(t, chatModel, followUp.Model)
	assert.Empty(t, followUp.Tools)
	first := calls[0].Messages
	require.Len(t, followUp.Messages, len(first)+2)
	assert.Equal(t, first, followUp.Messages[:len(first)])

	assistantTurn := followUp.Messages[len(first)]
	assert.Equal(t, chat.RoleAssistant, assistantTurn.Role)
	assert.Equal(t, []chat.ToolCall{call}, assistantTurn.ToolCalls)

	toolTurn := followUp.Messages[len(first)+1]
	assert.Equal(t, chat.RoleTool, toolTurn.Role)
	assert.Equal(t, "call_1", toolTurn.ToolCallID)
	assert.Equal(t, tools.ImageAnalysisTool, toolTurn.Name)
	var result chat.ToolResult
	require.NoError(t, json.Unmarshal([]byte(toolTurn.Content.Text), &result))
	assert.Equal(t, chat.Success("It is a wine stain on silk."), result)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ToolCalls.WithLabelValues(tools.ImageAnalysisTool, "success")))
}

func TestRespondUnknownTool(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(
		mocks.ToolCallReply(mocks.ToolCall("call_9", "book_pickup", `{"when": "tomorrow"}`)),
		mocks.Reply("I cannot book pickups yet."),
	))

	_, err := f.assistant.Respond(context.Background(), Inquiry{Text: "Pick up my coat tomorrow"})
	require.NoError(t, err)

	calls := f.completer.Calls()
	require.Len(t, calls, 2, "no image analysis runs for unknown tools")
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.JSONEq(t, `{"status":"error","message":"sorry, function not found"}`, last.Content.Text)
}

func TestRespondMultipleToolCallsSingleRoundTrip(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(
		mocks.ToolCallReply(
			mocks.ToolCall("a", "unknown_one", `{}`),
			mocks.ToolCall("b", "unknown_two", `not json`),
		),
		mocks.ToolCallReply(mocks.ToolCall("c", "unknown_three", `{}`)),
	), func(o *Options) { o.ReofferTools = true })

	reply, err := f.assistant.Respond(context.Background(), Inquiry{Text: "hello"})
	require.NoError(t, err)
	assert.Len(t, reply.ToolCalls, 1, "second tool request is returned, not executed")

	calls := f.completer.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[1].Tools, 1, "tools re-offered when configured")

	msgs := calls[1].Messages
	assert.Equal(t, "a", msgs[len(msgs)-2].ToolCallID)
	assert.Equal(t, "b", msgs[len(msgs)-1].ToolCallID)
	assert.JSONEq(t, `{"status":"error","message":"sorry, function not found"}`, msgs[len(msgs)-1].Content.Text)
}

func TestRespondCompletionErrors(t *testing.T) {
	upstream := &completion.Error{StatusCode: 500, Err: errors.New("overloaded")}

	t.Run("first call", func(t *testing.T) {
		f := newFixture(t, mocks.NewMockCompleter(func(ctx context.Context, req completion.Request) (*completion.Response, error) {
			return nil, upstream
		}))
		_, err := f.assistant.Respond(context.Background(), Inquiry{Text: "hi"})
		assert.ErrorIs(t, err, upstream)
	})

	t.Run("follow-up call", func(t *testing.T) {
		completer := mocks.NewMockCompleter(nil)
		completer.CompleteFunc = func(ctx context.Context, req completion.Request) (*completion.Response, error) {
			if completer.CallCount() == 1 {
				return mocks.ToolCallReply(mocks.ToolCall("x", "nope", `{}`)), nil
			}
			return nil, completion.ErrTimeout
		}
		f := newFixture(t, completer)
		_, err := f.assistant.Respond(context.Background(), Inquiry{Text: "hi"})
		assert.ErrorIs(t, err, completion.ErrTimeout)
	})
}

type fixedCounter int

func (c fixedCounter) CountTurns([]chat.Turn) int { return int(c) }

func TestRespondCountsPromptTokens(t *testing.T) {
	f := newFixture(t, mocks.NewScriptedCompleter(mocks.Reply("ok")))
	f.assistant.SetTokenCounter(fixedCounter(321))

	_, err := f.assistant.Respond(context.Background(), Inquiry{Text: "hi"})
	require.NoError(t, err)

	var sample dto.Metric
	require.NoError(t, f.metrics.PromptTokens.Write(&sample))
	assert.Equal(t, uint64(1), sample.GetHistogram().GetSampleCount())
	assert.Equal(t, float64(321), sample.GetHistogram().GetSampleSum())
}
