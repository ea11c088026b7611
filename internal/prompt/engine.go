package prompt

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/claudebridge/internal/protocol"
)

// DefaultEncoding is the tokenizer used for input token counts.
const DefaultEncoding = "cl100k_base"

// Engine counts prompt tokens for usage reporting. The CLI does not report
// the exact figure, so this is an approximation either way.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
}

// NewEngine loads the named tiktoken encoding. When it cannot be loaded the
// engine falls back to the character estimate.
func NewEngine(encoding string) *Engine {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("tokenizer unavailable, using character estimate", "encoding", encoding, "error", err)
		return &Engine{}
	}
	return &Engine{tokenizer: enc}
}

// CountTokens returns the token count of text. A nil Engine uses the
// character estimate.
func (e *Engine) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.tokenizer == nil {
		return protocol.EstimateTokens(text)
	}
	return len(e.tokenizer.Encode(text, nil, nil))
}
