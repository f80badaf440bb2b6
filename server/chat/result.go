package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolStatus is the outcome reported back to the model for a tool call.
type ToolStatus string

const (
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

// ToolResult is the payload of a tool-role turn.
type ToolResult struct {
	Status  ToolStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
	Message string     `json:"message"`
}

// Success returns a successful tool result.
func Success(message string) ToolResult {
	return ToolResult{Status: StatusSuccess, Message: message}
}

// Failure returns an error tool result. cause may be nil.
func Failure(message string, cause error) ToolResult {
	r := ToolResult{Status: StatusError, Message: message}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

// Encode renders r as indented JSON for a tool turn.
func (r ToolResult) Encode() string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		// ToolResult holds only strings.
		return fmt.Sprintf(`{"status": %q, "message": %q}`, r.Status, r.Message)
	}
	return string(b)
}

// ImageRef is an image entry of an inquiry. Clients send either a bare
// string or an object such as {"base64": "data:image/png;base64,..."}.
// The value is used as an image URL as-is.
type ImageRef string

// UnmarshalJSON accepts a string or an object with a base64 or url field.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = ImageRef(s)
		return nil
	}

	var obj struct {
		Base64 string `json:"base64"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("image must be a string or an object with a base64 field: %w", err)
	}
	switch {
	case obj.Base64 != "":
		*r = ImageRef(obj.Base64)
	case obj.URL != "":
		*r = ImageRef(obj.URL)
	default:
		return fmt.Errorf("image object has neither base64 nor url")
	}
	return nil
}

// IsDataURI reports whether s is an inline data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}
