// Package chat defines the conversation model exchanged between the inquiry
// endpoint, the assistant workflow and the completion service.
//
// The JSON shapes follow the OpenAI chat format so that a browser client can
// replay assistant messages it received earlier as part of "previous".
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role attributes a turn to a participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType distinguishes the members of structured content.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// ImageURL holds either a data URI or a remote URL.
type ImageURL struct {
	URL string `json:"url"`
}

// Part is one element of structured content.
type Part struct {
	Type     PartType  `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImagePart returns an image content part pointing at url.
func ImagePart(url string) Part {
	return Part{Type: PartImageURL, ImageURL: &ImageURL{URL: url}}
}

// Content is either plain text or an ordered sequence of parts. A non-nil
// Parts slice takes precedence over Text.
type Content struct {
	Text  string
	Parts []Part
}

// Text returns plain-text content.
func Text(s string) Content {
	return Content{Text: s}
}

// Multi returns structured content made of parts, in order.
func Multi(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

// IsMulti reports whether c carries structured parts.
func (c Content) IsMulti() bool {
	return c.Parts != nil
}

// String flattens the text of c, ignoring image parts.
func (c Content) String() string {
	if !c.IsMulti() {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if p.Type != PartText {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(p.Text)
	}
	return buf.String()
}

// MarshalJSON encodes c as a JSON string or an array of parts.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMulti() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string, an array of parts or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &c.Text)
	case '[':
		parts := []Part{}
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		c.Parts = parts
		return nil
	default:
		return fmt.Errorf("content must be a string or an array of parts")
	}
}

// FunctionCall names the function a tool call invokes. Arguments is the raw
// JSON text produced by the model and may be malformed.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a model request to run a named function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Turn is one message of a conversation.
type Turn struct {
	Role       Role       `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    Content    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemTurn builds a system-role turn with plain text content.
func SystemTurn(text string) Turn {
	return Turn{Role: RoleSystem, Content: Text(text)}
}

// UserTurn builds a user-role turn; content may be text or text plus images.
func UserTurn(content Content) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// ToolTurn carries the serialized result of call back to the model.
func ToolTurn(call ToolCall, content string) Turn {
	return Turn{
		Role:       RoleTool,
		Content:    Text(content),
		Name:       call.Function.Name,
		ToolCallID: call.ID,
	}
}

// Recent returns the last n turns of history, preserving order. The result
// never aliases the tail capacity of history, so appending to it is safe.
func Recent(history []Turn, n int) []Turn {
	if n < 0 {
		n = 0
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Turn, len(history))
	copy(out, history)
	return out
}
