package protocol

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	StopReasonEndTurn = "end_turn"
)

// Usage reports token counts. Output counts produced by this package are
// estimates, see EstimateTokens.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is a text block of an aggregate response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Message is the aggregate response object and also the body of a
// message_start frame (with empty content and a null stop reason).
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// InputMessage is one entry of a request's messages array. Content is kept
// raw because callers send either a string or an array of blocks.
type InputMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// EstimateTokens approximates a token count as ceil(characters / 4). It is
// not a tokenizer and makes no attempt to match one.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TextContent flattens message content to plain text. A JSON string is
// returned as is; for an array, bare strings and text blocks are joined with
// newlines and every other block kind is skipped.
func TextContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if err := json.Unmarshal(item, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		var block struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item, &block); err != nil {
			continue
		}
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func stringPtr(s string) *string { return &s }
