package event

import (
	"errors"
	"testing"
)

func TestParseAssistant(t *testing.T) {
	line := `{"type":"assistant","session_id":"s1","message":{"content":[{"type":"text","text":"Hello"},{"type":"thinking","thinking":"hmm"},{"type":"tool_use","name":"Read","input":{}}]}}`
	ev, err := Parse([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	a, ok := ev.(*Assistant)
	if !ok {
		t.Fatalf("expected *Assistant, got %T", ev)
	}
	if a.Session() != "s1" {
		t.Errorf("expected session s1, got %q", a.Session())
	}
	if len(a.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(a.Blocks))
	}
	if a.Blocks[0].Kind != BlockText || a.Blocks[0].Text != "Hello" {
		t.Errorf("unexpected first block %+v", a.Blocks[0])
	}
	if a.Blocks[1].Kind != BlockThinking || a.Blocks[1].Thinking != "hmm" {
		t.Errorf("unexpected second block %+v", a.Blocks[1])
	}
	if a.Blocks[2].Kind != BlockToolUse || a.Blocks[2].ToolName != "Read" {
		t.Errorf("unexpected third block %+v", a.Blocks[2])
	}
}

func TestParseAssistantWithoutContent(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"assistant","message":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if ev.(*Assistant).Blocks != nil {
		t.Error("expected nil blocks when content is missing")
	}

	ev, err = Parse([]byte(`{"type":"assistant","message":{"content":[]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if blocks := ev.(*Assistant).Blocks; blocks == nil || len(blocks) != 0 {
		t.Errorf("expected empty non-nil blocks, got %#v", blocks)
	}
}

func TestParseResult(t *testing.T) {
	line := `{"type":"result","subtype":"success","result":"done","session_id":" s9 ","total_cost_usd":0.25,"duration_ms":1200}`
	ev, err := Parse([]byte(line))
	if err != nil {
		t.Fatal(err)
	}
	r, ok := ev.(*Result)
	if !ok {
		t.Fatalf("expected *Result, got %T", ev)
	}
	if !r.HasText || r.Text != "done" {
		t.Errorf("expected text 'done', got %q (has=%v)", r.Text, r.HasText)
	}
	if r.Session() != "s9" {
		t.Errorf("expected trimmed session s9, got %q", r.Session())
	}
	if r.SessionField != " s9 " {
		t.Errorf("expected raw session field, got %q", r.SessionField)
	}
	if r.CostUSD == nil || *r.CostUSD != 0.25 {
		t.Errorf("expected cost 0.25, got %v", r.CostUSD)
	}
	if r.DurationMs == nil || *r.DurationMs != 1200 {
		t.Errorf("expected duration 1200, got %v", r.DurationMs)
	}
}

func TestParseResultNonStringResult(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"result","result":{"session_id":"nested"}}`))
	if err != nil {
		t.Fatal(err)
	}
	r := ev.(*Result)
	if r.HasText {
		t.Error("expected HasText false for object result")
	}
	if r.Session() != "nested" {
		t.Errorf("expected nested session, got %q", r.Session())
	}
}

func TestParsePassthroughAndUnknown(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"content_block_delta","index":0}`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ev.(*Passthrough)
	if !ok {
		t.Fatalf("expected *Passthrough, got %T", ev)
	}
	if p.Type() != "content_block_delta" || string(p.Raw) != `{"type":"content_block_delta","index":0}` {
		t.Errorf("unexpected passthrough %+v", p)
	}

	ev, err = Parse([]byte(`{"type":"stream_event"}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.(*Unknown); !ok {
		t.Fatalf("expected *Unknown, got %T", ev)
	}
}

func TestParseError(t *testing.T) {
	ev, err := Parse([]byte(`{"type":"error","error":{"message":"overloaded"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg := ev.(*Error).Message; msg != "overloaded" {
		t.Errorf("expected overloaded, got %q", msg)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, line := range []string{"", "not json", `{"type":`, "42", `"str"`} {
		if _, err := Parse([]byte(line)); err == nil {
			t.Errorf("expected error for %q", line)
		}
	}
	if _, err := Parse([]byte("[1,2]")); !errors.Is(err, ErrNotObject) {
		t.Errorf("expected ErrNotObject for array, got %v", err)
	}
}

func TestExtractSessionIDPrecedence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"direct wins", `{"session_id":"a","sessionId":"b","session":{"id":"c"},"result":{"session_id":"d"}}`, "a"},
		{"camel when direct blank", `{"session_id":"  ","sessionId":"b","session":{"id":"c"}}`, "b"},
		{"nested session", `{"session":{"id":" c "},"result":{"session_id":"d"}}`, "c"},
		{"nested result", `{"result":{"session_id":"d"}}`, "d"},
		{"non-string ignored", `{"session_id":12,"sessionId":"b"}`, "b"},
		{"none", `{"type":"system"}`, ""},
		{"all blank", `{"session_id":"","sessionId":" ","session":{"id":""}}`, ""},
		{"invalid json", `nope`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSessionID([]byte(tt.raw)); got != tt.want {
				t.Errorf("ExtractSessionID() = %q, want %q", got, tt.want)
			}
		})
	}
}
