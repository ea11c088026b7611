// Package event models the NDJSON records the agent CLI writes in
// stream-json mode as a closed set of variants.
package event

// Record types written by the CLI.
const (
	TypeSystem    = "system"
	TypeAssistant = "assistant"
	TypeUser      = "user"
	TypeResult    = "result"
	TypeError     = "error"
)

// Event is implemented only by the variants in this package, so a type
// switch over them is exhaustive.
type Event interface {
	// Type returns the record's "type" field.
	Type() string
	// Session returns the resolved session handle, or "" when the record
	// carries none.
	Session() string
	isEvent()
}

type base struct {
	sessionID string
}

func (b base) Session() string { return b.sessionID }
func (base) isEvent()          {}

// System is the session init record.
type System struct {
	base
	Subtype string
}

func (*System) Type() string { return TypeSystem }

// Assistant is one full assistant turn. Blocks is nil when the record had no
// content array at all, and empty when the array was empty.
type Assistant struct {
	base
	Blocks []Block
}

func (*Assistant) Type() string { return TypeAssistant }

// User echoes tool results back into the conversation.
type User struct {
	base
}

func (*User) Type() string { return TypeUser }

// Result is the terminal summary of a run.
type Result struct {
	base
	Subtype string
	// Text is the final result string; HasText is false when the record's
	// result field was missing or not a string.
	Text    string
	HasText bool
	// SessionField is the raw top-level session_id, kept apart from the
	// extracted handle.
	SessionField string
	CostUSD      *float64
	DurationMs   *float64
	IsError      bool
}

func (*Result) Type() string { return TypeResult }

// Error is an error record emitted by the CLI itself.
type Error struct {
	base
	Message string
}

func (*Error) Type() string { return TypeError }

// Passthrough is a record that is already a frame of the output protocol.
type Passthrough struct {
	base
	Name string
	Raw  []byte
}

func (p *Passthrough) Type() string { return p.Name }

// Unknown is any other record type.
type Unknown struct {
	base
	Kind string
}

func (u *Unknown) Type() string { return u.Kind }

// Block kinds inside an assistant turn.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Block is one content block of an assistant turn.
type Block struct {
	Kind     string
	Text     string
	Thinking string
	// ToolName is set for tool_use blocks.
	ToolName string
}
