package prompt

import (
	"encoding/json"
	"testing"

	"github.com/user/claudebridge/internal/protocol"
)

func msg(role, content string) protocol.InputMessage {
	raw, _ := json.Marshal(content)
	return protocol.InputMessage{Role: role, Content: raw}
}

func TestBuildFullSingleMessage(t *testing.T) {
	got := BuildFull([]protocol.InputMessage{msg("user", "hello")})
	if got != "hello" {
		t.Errorf("expected bare text, got %q", got)
	}
}

func TestBuildFullConversation(t *testing.T) {
	messages := []protocol.InputMessage{
		msg("user", "hi"),
		msg("assistant", "hello"),
		msg("user", ""),
		{Role: "user", Content: json.RawMessage(`[{"type":"text","text":"a"},{"type":"image"},"b"]`)},
	}
	got := BuildFull(messages)
	want := "User: hi\n\nAssistant: hello\n\nUser: a\nb"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBuildFullEmpty(t *testing.T) {
	if BuildFull(nil) != "" {
		t.Error("expected empty prompt for no messages")
	}
}

func TestLatestUser(t *testing.T) {
	messages := []protocol.InputMessage{
		msg("user", "first"),
		msg("assistant", "reply"),
		msg("user", "second"),
		msg("assistant", "trailing"),
	}
	if got := LatestUser(messages); got != "second" {
		t.Errorf("expected latest user turn, got %q", got)
	}
	if got := LatestUser([]protocol.InputMessage{msg("assistant", "x")}); got != "" {
		t.Errorf("expected empty without user turns, got %q", got)
	}
}

func TestBuildChoosesByResume(t *testing.T) {
	messages := []protocol.InputMessage{msg("user", "a"), msg("assistant", "b"), msg("user", "c")}
	if Build(messages, true) != "c" {
		t.Error("resume should send only the latest user turn")
	}
	if Build(messages, false) != "User: a\n\nAssistant: b\n\nUser: c" {
		t.Error("fresh run should send the full conversation")
	}
}

func TestCountTokensFallback(t *testing.T) {
	var e *Engine
	if n := e.CountTokens("abcdefgh"); n != 2 {
		t.Errorf("expected character estimate 2, got %d", n)
	}
	if n := (&Engine{}).CountTokens(""); n != 0 {
		t.Errorf("expected 0 for empty text, got %d", n)
	}
}

func TestNewEngineCounts(t *testing.T) {
	e := NewEngine(DefaultEncoding)
	if n := e.CountTokens("hello world"); n <= 0 {
		t.Errorf("expected positive count, got %d", n)
	}
}
