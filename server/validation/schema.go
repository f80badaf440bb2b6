package validation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teilomillet/concierge/server/chat"
)

// InquiryRequest is the body of POST /api/route.
type InquiryRequest struct {
	// Lang selects the caption language on the client; unused server side
	Lang float64 `json:"lang"`

	// Inquiry is the customer's new message
	Inquiry string `json:"inquiry" validate:"required"`

	// Previous is the conversation so far, oldest first. It must be present,
	// even if empty.
	Previous []chat.Turn `json:"previous" validate:"required,dive"`

	// Image holds images attached to this inquiry
	Image ImageList `json:"image,omitempty" validate:"omitempty,dive,required"`
}

// ImageList is the image field of an inquiry. Anything other than a JSON
// array (a bare string, an object, null) means the inquiry has no images.
type ImageList []chat.ImageRef

// UnmarshalJSON decodes arrays and ignores every other JSON value.
func (l *ImageList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		*l = nil
		return nil
	}
	var refs []chat.ImageRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return err
	}
	*l = refs
	return nil
}

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// Per-message framing overhead of the chat format.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

const fallbackEncoding = "cl100k_base"

// TokenCounter estimates prompt sizes with tiktoken.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter creates a counter for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding for model %s: %v", model, err)
		}
	}
	return &TokenCounter{encoding: &tiktokenWrapper{encoding}}, nil
}

// CountTurn counts the text of a turn plus its framing. Image parts are not
// counted.
func (tc *TokenCounter) CountTurn(turn chat.Turn) int {
	n := tokensPerMessage + tc.encoding.CountTokens(string(turn.Role))
	n += tc.encoding.CountTokens(turn.Content.String())
	if turn.Name != "" {
		n += tc.encoding.CountTokens(turn.Name) + 1
	}
	for _, call := range turn.ToolCalls {
		n += tc.encoding.CountTokens(call.Function.Name)
		n += tc.encoding.CountTokens(call.Function.Arguments)
	}
	return n
}

// CountTurns estimates the prompt tokens of a whole conversation.
func (tc *TokenCounter) CountTurns(turns []chat.Turn) int {
	total := tokensPerReply
	for _, turn := range turns {
		total += tc.CountTurn(turn)
	}
	return total
}
