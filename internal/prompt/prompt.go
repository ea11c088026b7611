// Package prompt turns request messages into the text piped to the CLI.
package prompt

import (
	"strings"

	"github.com/user/claudebridge/internal/protocol"
)

// Build returns the prompt for a run: only the latest user turn when the CLI
// session is being resumed, the whole conversation otherwise.
func Build(messages []protocol.InputMessage, resume bool) string {
	if resume {
		return LatestUser(messages)
	}
	return BuildFull(messages)
}

// BuildFull reconstructs the conversation for a fresh CLI session. A single
// message is sent as its bare text; longer histories are rendered as
// "User: ..." and "Assistant: ..." paragraphs. Messages without text and
// roles other than user and assistant are skipped.
func BuildFull(messages []protocol.InputMessage) string {
	if len(messages) == 0 {
		return ""
	}
	if len(messages) == 1 {
		return protocol.TextContent(messages[0].Content)
	}

	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		text := protocol.TextContent(msg.Content)
		if text == "" {
			continue
		}
		switch msg.Role {
		case protocol.RoleUser:
			parts = append(parts, "User: "+text)
		case protocol.RoleAssistant:
			parts = append(parts, "Assistant: "+text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// LatestUser returns the text of the last user message, or "".
func LatestUser(messages []protocol.InputMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == protocol.RoleUser {
			return protocol.TextContent(messages[i].Content)
		}
	}
	return ""
}
