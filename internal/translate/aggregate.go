package translate

import (
	"strings"

	"github.com/user/claudebridge/internal/event"
	"github.com/user/claudebridge/internal/protocol"
	"github.com/user/claudebridge/internal/types"
)

// Aggregate folds a fully buffered run into one response message and returns
// it along with the session handle the run reported ("" if none).
//
// Text blocks of assistant turns are kept in order. Without any, the result
// record's text is used, and failing that a single empty text block, so the
// content list is never empty. Events after the first result are ignored.
func Aggregate(events []event.Event, model string) (*protocol.Message, string) {
	if model == "" {
		model = DefaultModel
	}

	var blocks []protocol.ContentBlock
	var sessionID, resultText string

loop:
	for _, ev := range events {
		if sid := ev.Session(); sid != "" {
			sessionID = sid
		}
		switch ev := ev.(type) {
		case *event.Assistant:
			for _, b := range ev.Blocks {
				if b.Kind == event.BlockText && b.Text != "" {
					blocks = append(blocks, protocol.ContentBlock{Type: protocol.BlockText, Text: b.Text})
				}
			}
		case *event.Result:
			sessionID = resultSession(ev, sessionID)
			if ev.HasText {
				resultText = ev.Text
			}
			break loop
		}
	}

	if len(blocks) == 0 && resultText != "" {
		blocks = append(blocks, protocol.ContentBlock{Type: protocol.BlockText, Text: resultText})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, protocol.ContentBlock{Type: protocol.BlockText, Text: ""})
	}

	var full strings.Builder
	for _, b := range blocks {
		full.WriteString(b.Text)
	}
	stop := protocol.StopReasonEndTurn

	return &protocol.Message{
		ID:         string(types.NewMessageID()),
		Type:       "message",
		Role:       protocol.RoleAssistant,
		Content:    blocks,
		Model:      model,
		StopReason: &stop,
		Usage: protocol.Usage{
			OutputTokens: protocol.EstimateTokens(full.String()),
		},
	}, sessionID
}
