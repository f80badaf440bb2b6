package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teilomillet/concierge/config"
	"github.com/teilomillet/concierge/server/chat"
	"github.com/teilomillet/concierge/server/completion"
	"github.com/teilomillet/concierge/server/mocks"
	"github.com/teilomillet/concierge/server/prompt"
)

func newTestAnalyzer(t *testing.T, completer completion.Completer, root string) *ImageAnalyzer {
	t.Helper()
	p := config.DefaultPrompts()
	p.ImageAnalysis = "ANALYZE."
	p.Today = " Today is {{.Today}}."
	templates, err := prompt.Compile(p)
	require.NoError(t, err)
	assembler := prompt.NewAssembler(templates, func() time.Time {
		return time.Date(2024, time.March, 14, 9, 30, 0, 0, time.UTC)
	})
	resolver, err := NewImageResolver(root, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return NewImageAnalyzer(completer, assembler, resolver, "vision-model", zaptest.NewLogger(t))
}

func analysisCall(t *testing.T, query string, images []string, inquiry string, history []chat.Turn) Call {
	t.Helper()
	args, err := json.Marshal(analysisArgs{Query: query, Images: images})
	require.NoError(t, err)
	return Call{Arguments: args, Inquiry: inquiry, Context: history}
}

func TestImageAnalyzerDeclaration(t *testing.T) {
	a := newTestAnalyzer(t, mocks.NewMockCompleter(nil), t.TempDir())
	decl := a.Declaration()
	assert.Equal(t, ImageAnalysisTool, decl.Name)

	raw, err := json.Marshal(decl.Parameters)
	require.NoError(t, err)
	var schema struct {
		Type       string   `json:"type"`
		Required   []string `json:"required"`
		Properties map[string]struct {
			Type  string `json:"type"`
			Items *struct {
				Type string `json:"type"`
			} `json:"items"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema.Type)
	assert.ElementsMatch(t, []string{"query", "images"}, schema.Required)
	assert.Equal(t, "string", schema.Properties["query"].Type)
	assert.Equal(t, "array", schema.Properties["images"].Type)
	require.NotNil(t, schema.Properties["images"].Items)
	assert.Equal(t, "string", schema.Properties["images"].Items.Type)
}

func TestImageAnalyzerSuccess(t *testing.T) {
	root := newPublicDir(t, map[string][]byte{"shirt.jpg": []byte("jpeg")})
	completer := mocks.NewMockCompleter(func(ctx context.Context, req completion.Request) (*completion.Response, error) {
		return mocks.Reply("Looks like a red wine stain on cotton."), nil
	})
	a := newTestAnalyzer(t, completer, root)

	history := []chat.Turn{
		chat.UserTurn(chat.Text("hi")),
		{Role: chat.RoleAssistant, Content: chat.Text("hello, how can I help?")},
	}
	inline := "data:image/png;base64,AA=="
	result := a.Handle(context.Background(), analysisCall(t, "What stain is this?",
		[]string{"missing.jpg", "shirt.jpg", inline}, "Can you look at my shirt?", history))

	assert.Equal(t, chat.Success("Looks like a red wine stain on cotton."), result)

	calls := completer.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "vision-model", req.Model)
	assert.Empty(t, req.Tools)

	require.Len(t, req.Messages, 5)
	assert.Equal(t, chat.SystemTurn("ANALYZE. Today is Thu Mar 14 2024 09:30:00 UTC."), req.Messages[0])
	assert.Equal(t, history, req.Messages[1:3])
	assert.Equal(t, chat.UserTurn(chat.Text("Can you look at my shirt?")), req.Messages[3])

	last := req.Messages[4]
	assert.Equal(t, chat.RoleUser, last.Role)
	require.Len(t, last.Content.Parts, 3)
	assert.Equal(t, chat.TextPart("What stain is this?"), last.Content.Parts[0])
	assert.Equal(t, "data:image/jpeg;base64,anBlZw==", last.Content.Parts[1].ImageURL.URL)
	assert.Equal(t, inline, last.Content.Parts[2].ImageURL.URL)
}

func TestImageAnalyzerWithoutInquiry(t *testing.T) {
	completer := mocks.NewMockCompleter(nil)
	a := newTestAnalyzer(t, completer, t.TempDir())

	a.Handle(context.Background(), analysisCall(t, "q", []string{"data:image/png;base64,AA=="}, "", nil))

	calls := completer.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	assert.Equal(t, chat.RoleSystem, calls[0].Messages[0].Role)
	assert.True(t, calls[0].Messages[1].Content.IsMulti())
}

func TestImageAnalyzerNoImageFound(t *testing.T) {
	completer := mocks.NewMockCompleter(nil)
	a := newTestAnalyzer(t, completer, t.TempDir())

	result := a.Handle(context.Background(), analysisCall(t, "q", []string{"gone.jpg"}, "", nil))

	assert.JSONEq(t, `{"status":"error","message":"Failed to make analysis. No image found"}`, result.Encode())
	assert.Zero(t, completer.CallCount())
}

func TestImageAnalyzerCompletionFailure(t *testing.T) {
	completer := mocks.NewMockCompleter(func(ctx context.Context, req completion.Request) (*completion.Response, error) {
		return nil, errors.New("upstream exploded")
	})
	a := newTestAnalyzer(t, completer, t.TempDir())

	result := a.Handle(context.Background(), analysisCall(t, "q", []string{"data:image/png;base64,AA=="}, "", nil))

	assert.Equal(t, chat.StatusError, result.Status)
	assert.Equal(t, "upstream exploded", result.Error)
	assert.Equal(t, MsgAnalysisFailed, result.Message)
}

func TestImageAnalyzerBadArguments(t *testing.T) {
	completer := mocks.NewMockCompleter(nil)
	a := newTestAnalyzer(t, completer, t.TempDir())

	result := a.Handle(context.Background(), Call{Arguments: json.RawMessage(`{"images": "not-a-list"}`)})

	assert.Equal(t, chat.StatusError, result.Status)
	assert.Equal(t, MsgBadArguments, result.Message)
	assert.Zero(t, completer.CallCount())
}
