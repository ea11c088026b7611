package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/user/claudebridge/internal/protocol"
)

// ErrNotObject is returned by Parse for a line that is valid JSON but not an
// object.
var ErrNotObject = errors.New("record is not a JSON object")

type record struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	SessionID    json.RawMessage `json:"session_id"`
	SessionCamel json.RawMessage `json:"sessionId"`
	Session      json.RawMessage `json:"session"`
	Result       json.RawMessage `json:"result"`
	Message      json.RawMessage `json:"message"`
	Error        json.RawMessage `json:"error"`
	CostUSD      *float64        `json:"cost_usd"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	DurationMs   *float64        `json:"duration_ms"`
	IsError      bool            `json:"is_error"`
}

// Parse decodes one NDJSON line into its variant.
func Parse(line []byte) (Event, error) {
	trimmed := strings.TrimSpace(string(line))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotObject
	}
	var rec record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	b := base{sessionID: rec.extractSessionID()}

	switch rec.Type {
	case TypeSystem:
		return &System{base: b, Subtype: rec.Subtype}, nil
	case TypeAssistant:
		return &Assistant{base: b, Blocks: parseBlocks(rec.Message)}, nil
	case TypeUser:
		return &User{base: b}, nil
	case TypeResult:
		res := &Result{
			base:         b,
			Subtype:      rec.Subtype,
			SessionField: rawString(rec.SessionID),
			CostUSD:      rec.CostUSD,
			DurationMs:   rec.DurationMs,
			IsError:      rec.IsError,
		}
		if res.CostUSD == nil {
			res.CostUSD = rec.TotalCostUSD
		}
		if err := json.Unmarshal(rec.Result, &res.Text); err == nil {
			res.HasText = true
		}
		return res, nil
	case TypeError:
		return &Error{base: b, Message: errorMessage(rec.Error)}, nil
	}
	if protocol.IsFrameName(rec.Type) {
		return &Passthrough{base: b, Name: rec.Type, Raw: []byte(trimmed)}, nil
	}
	return &Unknown{base: b, Kind: rec.Type}, nil
}

// ExtractSessionID probes a raw record for a session handle in fixed order:
// session_id, sessionId, session.id, result.session_id. The first non-blank
// string wins, trimmed. It returns "" when none is present.
func ExtractSessionID(raw []byte) string {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return ""
	}
	return rec.extractSessionID()
}

func (r *record) extractSessionID() string {
	if s := trimmedString(r.SessionID); s != "" {
		return s
	}
	if s := trimmedString(r.SessionCamel); s != "" {
		return s
	}
	var session struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(r.Session, &session) == nil {
		if s := trimmedString(session.ID); s != "" {
			return s
		}
	}
	var result struct {
		SessionID json.RawMessage `json:"session_id"`
	}
	if json.Unmarshal(r.Result, &result) == nil {
		if s := trimmedString(result.SessionID); s != "" {
			return s
		}
	}
	return ""
}

func trimmedString(raw json.RawMessage) string {
	return strings.TrimSpace(rawString(raw))
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func parseBlocks(message json.RawMessage) []Block {
	var msg struct {
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(message, &msg) != nil {
		return nil
	}
	var raw []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
		Name     string `json:"name"`
	}
	if json.Unmarshal(msg.Content, &raw) != nil || raw == nil {
		return nil
	}
	blocks := make([]Block, 0, len(raw))
	for _, rb := range raw {
		blocks = append(blocks, Block{
			Kind:     rb.Type,
			Text:     rb.Text,
			Thinking: rb.Thinking,
			ToolName: rb.Name,
		})
	}
	return blocks
}

func errorMessage(raw json.RawMessage) string {
	if s := rawString(raw); s != "" {
		return s
	}
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		return body.Message
	}
	return ""
}
