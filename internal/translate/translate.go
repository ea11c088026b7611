// Package translate turns CLI events into frames of the Messages streaming
// protocol, and folds a buffered run into a single aggregate message.
package translate

import (
	"encoding/json"
	"strings"

	"github.com/user/claudebridge/internal/event"
	"github.com/user/claudebridge/internal/protocol"
	"github.com/user/claudebridge/internal/types"
)

// DefaultModel is reported when a request names no model.
const DefaultModel = "claude-code"

// StreamState accumulates what one streamed response has emitted so far. It
// belongs to a single translation and must not be shared across requests.
type StreamState struct {
	MessageID string
	Model     string
	SessionID string

	CostUSD    *float64
	DurationMs *float64

	messageStarted bool
	finished       bool
	blockIndex     int
	output         strings.Builder
}

// NewStreamState returns a fresh state with a new message id.
func NewStreamState(model string) *StreamState {
	if model == "" {
		model = DefaultModel
	}
	return &StreamState{
		MessageID: string(types.NewMessageID()),
		Model:     model,
	}
}

// MessageStarted reports whether message_start has been emitted.
func (s *StreamState) MessageStarted() bool { return s.messageStarted }

// Finished reports whether message_stop has been emitted, either from a
// result or forwarded as-is.
func (s *StreamState) Finished() bool { return s.finished }

// OutputText returns the visible text emitted so far.
func (s *StreamState) OutputText() string { return s.output.String() }

// Event translates one event into zero or more frames, advancing st. Frames
// come out in the order they must be written. Events after the terminal
// result produce nothing.
func Event(ev event.Event, st *StreamState) []protocol.Frame {
	if ev == nil || st.finished {
		return nil
	}

	switch ev := ev.(type) {
	case *event.Assistant:
		if ev.Blocks == nil {
			return nil
		}
		frames := st.start(nil)
		for _, b := range ev.Blocks {
			switch b.Kind {
			case event.BlockText:
				if b.Text == "" {
					continue
				}
				frames = append(frames, st.block(protocol.BlockText, b.Text)...)
				st.output.WriteString(b.Text)
			case event.BlockThinking:
				if b.Thinking == "" {
					continue
				}
				frames = append(frames, st.block(protocol.BlockThinking, b.Thinking)...)
			}
			// tool_use and tool_result belong to the agent's own loop
		}
		return frames

	case *event.Result:
		var frames []protocol.Frame
		if !st.messageStarted {
			frames = st.start(frames)
			if ev.HasText && ev.Text != "" && st.output.Len() == 0 {
				frames = append(frames, st.block(protocol.BlockText, ev.Text)...)
				st.output.WriteString(ev.Text)
			}
		}
		st.SessionID = resultSession(ev, st.SessionID)
		st.CostUSD = ev.CostUSD
		st.DurationMs = ev.DurationMs
		st.finished = true
		return append(frames, protocol.NewMessageEnd(protocol.EstimateTokens(st.output.String()))...)

	case *event.System, *event.User, *event.Error:
		if sid := ev.Session(); sid != "" {
			st.SessionID = sid
		}
		return nil

	case *event.Passthrough:
		switch ev.Name {
		case protocol.FrameMessageStart:
			st.messageStarted = true
		case protocol.FrameMessageStop:
			st.finished = true
		}
		return []protocol.Frame{{Name: ev.Name, Data: json.RawMessage(ev.Raw)}}

	case *event.Unknown:
		return nil
	}
	return nil
}

// start prepends message_start to frames the first time it is called.
func (s *StreamState) start(frames []protocol.Frame) []protocol.Frame {
	if s.messageStarted {
		return frames
	}
	s.messageStarted = true
	return append(frames, protocol.NewMessageStart(s.MessageID, s.Model))
}

func (s *StreamState) block(kind, body string) []protocol.Frame {
	idx := s.blockIndex
	s.blockIndex++
	return protocol.NewBlock(idx, kind, body)
}

// resultSession prefers the extracted handle, then the explicit field, then
// whatever was known before.
func resultSession(ev *event.Result, previous string) string {
	if sid := ev.Session(); sid != "" {
		return sid
	}
	if ev.SessionField != "" {
		return ev.SessionField
	}
	return previous
}

// SyntheticResult is translated when a run ends cleanly without a result
// record so the stream still closes with message_delta and message_stop.
func SyntheticResult() *event.Result {
	return &event.Result{HasText: true}
}
