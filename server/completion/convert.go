package completion

import (
	"github.com/sashabaranov/go-openai"

	"github.com/teilomillet/concierge/server/chat"
)

func toOpenAIMessages(turns []chat.Turn) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, toOpenAIMessage(t))
	}
	return out
}

func toOpenAIMessage(t chat.Turn) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       string(t.Role),
		Name:       t.Name,
		ToolCallID: t.ToolCallID,
	}

	if t.Content.IsMulti() {
		msg.MultiContent = make([]openai.ChatMessagePart, 0, len(t.Content.Parts))
		for _, p := range t.Content.Parts {
			part := openai.ChatMessagePart{Type: openai.ChatMessagePartType(p.Type), Text: p.Text}
			if p.ImageURL != nil {
				part.ImageURL = &openai.ChatMessageImageURL{URL: p.ImageURL.URL}
			}
			msg.MultiContent = append(msg.MultiContent, part)
		}
	} else {
		msg.Content = t.Content.Text
	}

	for _, tc := range t.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolType(tc.Type),
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}

func fromOpenAIMessage(msg openai.ChatCompletionMessage) chat.Turn {
	turn := chat.Turn{
		Role:       chat.Role(msg.Role),
		Name:       msg.Name,
		ToolCallID: msg.ToolCallID,
	}
	if turn.Role == "" {
		turn.Role = chat.RoleAssistant
	}

	if len(msg.MultiContent) > 0 {
		parts := make([]chat.Part, 0, len(msg.MultiContent))
		for _, p := range msg.MultiContent {
			part := chat.Part{Type: chat.PartType(p.Type), Text: p.Text}
			if p.ImageURL != nil {
				part.ImageURL = &chat.ImageURL{URL: p.ImageURL.URL}
			}
			parts = append(parts, part)
		}
		turn.Content = chat.Multi(parts...)
	} else {
		turn.Content = chat.Text(msg.Content)
	}

	for _, tc := range msg.ToolCalls {
		typ := string(tc.Type)
		if typ == "" {
			typ = string(openai.ToolTypeFunction)
		}
		turn.ToolCalls = append(turn.ToolCalls, chat.ToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: chat.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return turn
}

func toOpenAITools(tools []Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
