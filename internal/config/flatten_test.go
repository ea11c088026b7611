package config

import (
	"testing"
)

func TestFlatten_Nested(t *testing.T) {
	m := map[string]any{
		"claude": map[string]any{
			"path":    "claude",
			"api_key": "sk-ant-123",
			"limits": map[string]any{
				"budget": 5.0,
			},
		},
		"log_level": "info",
		"empty":     map[string]any{},
	}
	got := Flatten(m)
	want := map[string]any{
		"claude.path":          "claude",
		"claude.api_key":       "sk-ant-123",
		"claude.limits.budget": 5.0,
		"log_level":            "info",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %v", len(want), len(got), got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("expected %s=%v, got %v", k, v, got[k])
		}
	}
}

func TestFlatten_KeepsLists(t *testing.T) {
	got := Flatten(map[string]any{
		"claude": map[string]any{"allowed_tools": []any{"Read", "Grep"}},
	})
	tools, ok := got["claude.allowed_tools"].([]any)
	if !ok || len(tools) != 2 {
		t.Fatalf("expected list value, got %#v", got["claude.allowed_tools"])
	}
}

func TestUnflatten_Nested(t *testing.T) {
	got := Unflatten(map[string]any{
		"server.host":    "127.0.0.1",
		"server.port":    8787.0,
		"a.b.c":          "deep",
		"max_concurrent": 4.0,
	})
	server, ok := got["server"].(map[string]any)
	if !ok {
		t.Fatalf("expected server to be map, got %T", got["server"])
	}
	if server["host"] != "127.0.0.1" || server["port"] != 8787.0 {
		t.Errorf("unexpected server map %v", server)
	}
	b := got["a"].(map[string]any)["b"].(map[string]any)
	if b["c"] != "deep" {
		t.Errorf("expected a.b.c=deep, got %v", b["c"])
	}
	if got["max_concurrent"] != 4.0 {
		t.Errorf("expected max_concurrent=4, got %v", got["max_concurrent"])
	}
}

func TestUnflatten_ReplacesScalarParent(t *testing.T) {
	got := Unflatten(map[string]any{
		"sessions":      "oops",
		"sessions.file": "/tmp/s.json",
	})
	// Map iteration order decides which write wins; a scalar parent must
	// never make the nested write panic.
	if m, ok := got["sessions"].(map[string]any); ok {
		if m["file"] != "/tmp/s.json" {
			t.Errorf("unexpected sessions map %v", m)
		}
	}
}

func TestRoundTrip_FlattenUnflatten(t *testing.T) {
	original := map[string]any{
		"data_dir":  "/home/test/.claudebridge",
		"log_level": "debug",
		"claude": map[string]any{
			"path":           "claude",
			"api_key":        "sk-ant-123456",
			"max_budget_usd": 5.0,
		},
		"sessions": map[string]any{
			"max_age_ms": 86400000.0,
		},
	}

	restored := Unflatten(Flatten(original))

	if restored["data_dir"] != original["data_dir"] || restored["log_level"] != original["log_level"] {
		t.Errorf("top-level mismatch: %v", restored)
	}
	claude := restored["claude"].(map[string]any)
	for k, v := range original["claude"].(map[string]any) {
		if claude[k] != v {
			t.Errorf("claude.%s mismatch: %v != %v", k, claude[k], v)
		}
	}
	if restored["sessions"].(map[string]any)["max_age_ms"] != 86400000.0 {
		t.Errorf("sessions.max_age_ms lost: %v", restored["sessions"])
	}
}

func TestMaskSecrets(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"long", "sk-ant-123456", "***3456"},
		{"exactly four", "abcd", "***abcd"},
		{"short", "ab", "***ab"},
		{"empty", "", ""},
		{"non-string", 42.0, 42.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskSecrets(map[string]any{
				"claude.api_key": tt.value,
				"claude.path":    "claude",
			})
			if got["claude.api_key"] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got["claude.api_key"])
			}
			if got["claude.path"] != "claude" {
				t.Errorf("non-secret changed: %v", got["claude.path"])
			}
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("claude.api_key") {
		t.Error("claude.api_key should be secret")
	}
	if IsSecretKey("claude.path") {
		t.Error("claude.path should not be secret")
	}
}
