package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Frame names of the streaming protocol.
const (
	FrameMessageStart      = "message_start"
	FrameContentBlockStart = "content_block_start"
	FrameContentBlockDelta = "content_block_delta"
	FrameContentBlockStop  = "content_block_stop"
	FrameMessageDelta      = "message_delta"
	FrameMessageStop       = "message_stop"
	FramePing              = "ping"
	FrameError             = "error"
)

const (
	BlockText     = "text"
	BlockThinking = "thinking"
	DeltaText     = "text_delta"
	DeltaThinking = "thinking_delta"
)

// IsFrameName reports whether name is a frame the protocol defines and that a
// producer may hand over already formed.
func IsFrameName(name string) bool {
	switch name {
	case FrameMessageStart, FrameContentBlockStart, FrameContentBlockDelta,
		FrameContentBlockStop, FrameMessageDelta, FrameMessageStop, FramePing:
		return true
	}
	return false
}

// Frame is one named, JSON-bodied unit of the stream.
type Frame struct {
	Name string
	Data any
}

type MessageStart struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// BlockStub is the empty block announced by content_block_start.
type BlockStub struct {
	Type     string  `json:"type"`
	Text     *string `json:"text,omitempty"`
	Thinking *string `json:"thinking,omitempty"`
}

type ContentBlockStart struct {
	Type         string    `json:"type"`
	Index        int       `json:"index"`
	ContentBlock BlockStub `json:"content_block"`
}

type BlockDelta struct {
	Type     string  `json:"type"`
	Text     *string `json:"text,omitempty"`
	Thinking *string `json:"thinking,omitempty"`
}

type ContentBlockDelta struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

type ContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type StopDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type OutputUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type MessageDelta struct {
	Type  string      `json:"type"`
	Delta StopDelta   `json:"delta"`
	Usage OutputUsage `json:"usage"`
}

type MessageStop struct {
	Type string `json:"type"`
}

// NewMessageStart returns the opening frame: empty content, zero usage and no
// stop reason yet.
func NewMessageStart(id, model string) Frame {
	return Frame{Name: FrameMessageStart, Data: MessageStart{
		Type: FrameMessageStart,
		Message: Message{
			ID:      id,
			Type:    "message",
			Role:    RoleAssistant,
			Content: []ContentBlock{},
			Model:   model,
		},
	}}
}

// NewBlock returns the start/delta/stop triad delivering a whole block of the
// given kind (BlockText or BlockThinking) at index.
func NewBlock(index int, kind, body string) []Frame {
	stub := BlockStub{Type: kind}
	delta := BlockDelta{}
	if kind == BlockThinking {
		stub.Thinking = stringPtr("")
		delta.Type = DeltaThinking
		delta.Thinking = stringPtr(body)
	} else {
		stub.Text = stringPtr("")
		delta.Type = DeltaText
		delta.Text = stringPtr(body)
	}
	return []Frame{
		{Name: FrameContentBlockStart, Data: ContentBlockStart{Type: FrameContentBlockStart, Index: index, ContentBlock: stub}},
		{Name: FrameContentBlockDelta, Data: ContentBlockDelta{Type: FrameContentBlockDelta, Index: index, Delta: delta}},
		{Name: FrameContentBlockStop, Data: ContentBlockStop{Type: FrameContentBlockStop, Index: index}},
	}
}

// NewMessageEnd returns the closing message_delta and message_stop pair.
func NewMessageEnd(outputTokens int) []Frame {
	return []Frame{
		{Name: FrameMessageDelta, Data: MessageDelta{
			Type:  FrameMessageDelta,
			Delta: StopDelta{StopReason: StopReasonEndTurn},
			Usage: OutputUsage{OutputTokens: outputTokens},
		}},
		{Name: FrameMessageStop, Data: MessageStop{Type: FrameMessageStop}},
	}
}

// NewErrorFrame wraps an error payload as a terminal stream frame.
func NewErrorFrame(errType, message string) Frame {
	return Frame{Name: FrameError, Data: NewError(errType, message)}
}

// MarshalJSONBody encodes v on a single line without HTML escaping.
func MarshalJSONBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encode renders the frame as "event: <name>\ndata: <json>\n\n".
func (f Frame) Encode() ([]byte, error) {
	data, err := MarshalJSONBody(f.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", f.Name, err)
	}
	out := make([]byte, 0, len(f.Name)+len(data)+16)
	out = append(out, "event: "...)
	out = append(out, f.Name...)
	out = append(out, "\ndata: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}

// WriteTo writes the encoded frame to w.
func (f Frame) WriteTo(w io.Writer) (int64, error) {
	data, err := f.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}
