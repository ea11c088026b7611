package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

// clearEnv blanks every override so the host environment cannot leak into
// Load.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"HOST", "PORT", "CLAUDE_PATH", "CLAUDE_ENTRY", "CLAUDE_SCRIPT",
		"CLAUDE_TIMEOUT_MS", "CLAUDE_MAX_BUDGET_USD", "CLAUDE_ALLOWED_TOOLS",
		"CLAUDE_DANGEROUSLY_SKIP_PERMISSIONS", "CLAUDE_ALLOWED_DIRECTORIES",
		"CLAUDE_EXTRA_PATH", "SESSION_MAX_AGE_MS", "CLAUDEBRIDGE_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	original := &Config{
		DataDir:       "/tmp/test-data",
		LogLevel:      "debug",
		MaxConcurrent: 4,
		Model:         "claude-code",
	}
	original.Server.Host = "0.0.0.0"
	original.Server.Port = 9999
	original.Claude.Path = "/usr/local/bin/claude"
	original.Claude.TimeoutMs = 60000
	original.Claude.MaxBudgetUSD = 2.5
	original.Claude.AllowedTools = []string{"Read"}
	original.Claude.SkipPermissions = true
	original.Claude.APIKey = "sk-ant-round-trip"
	original.Sessions.MaxAgeMs = 1000

	// Save
	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file does not exist after Save: %v", err)
	}

	// Reload
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Compare key fields
	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.Addr() != "0.0.0.0:9999" {
		t.Errorf("Addr mismatch: %v", loaded.Addr())
	}
	if loaded.Claude.Path != original.Claude.Path {
		t.Errorf("Claude.Path mismatch: %v != %v", loaded.Claude.Path, original.Claude.Path)
	}
	if loaded.Timeout() != time.Minute {
		t.Errorf("Timeout mismatch: %v", loaded.Timeout())
	}
	if loaded.Claude.MaxBudgetUSD != original.Claude.MaxBudgetUSD {
		t.Errorf("MaxBudgetUSD mismatch: %v != %v", loaded.Claude.MaxBudgetUSD, original.Claude.MaxBudgetUSD)
	}
	if len(loaded.Claude.AllowedTools) != 1 || loaded.Claude.AllowedTools[0] != "Read" {
		t.Errorf("AllowedTools mismatch: %v", loaded.Claude.AllowedTools)
	}
	if !loaded.Claude.SkipPermissions {
		t.Error("SkipPermissions lost")
	}
	if loaded.Claude.APIKey != original.Claude.APIKey {
		t.Errorf("APIKey mismatch: %v != %v", loaded.Claude.APIKey, original.Claude.APIKey)
	}
	if loaded.SessionMaxAge() != time.Second {
		t.Errorf("SessionMaxAge mismatch: %v", loaded.SessionMaxAge())
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults written: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:8787" {
		t.Errorf("unexpected default addr %s", cfg.Addr())
	}
	if cfg.Claude.Path != "claude" || cfg.Claude.MaxBudgetUSD != 5 || cfg.Timeout() != 300*time.Second {
		t.Errorf("unexpected claude defaults %+v", cfg.Claude)
	}
	if strings.Join(cfg.Claude.AllowedTools, ",") != "Read,Glob,Grep,WebSearch,WebFetch" {
		t.Errorf("unexpected default tools %v", cfg.Claude.AllowedTools)
	}
	if cfg.SessionMaxAge() != 24*time.Hour || cfg.Sessions.PruneSchedule != "@every 10m" {
		t.Errorf("unexpected session defaults %+v", cfg.Sessions)
	}
	if cfg.MaxConcurrent != 4 || cfg.Model != "claude-code" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionsFile() != filepath.Join(cfg.DataDir, "sessions.json") {
		t.Errorf("unexpected sessions file %s", cfg.SessionsFile())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("CLAUDE_ENTRY", "node")
	t.Setenv("CLAUDE_SCRIPT", "/opt/cli.js")
	t.Setenv("CLAUDE_TIMEOUT_MS", "1000")
	t.Setenv("CLAUDE_MAX_BUDGET_USD", "1.5")
	t.Setenv("CLAUDE_ALLOWED_TOOLS", "Read, Bash ,")
	t.Setenv("CLAUDE_DANGEROUSLY_SKIP_PERMISSIONS", "true")
	t.Setenv("CLAUDE_ALLOWED_DIRECTORIES", "/a,/b")
	t.Setenv("CLAUDE_EXTRA_PATH", "/opt/bin")
	t.Setenv("SESSION_MAX_AGE_MS", "60000")
	t.Setenv("CLAUDEBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Claude.Entry != "node" || cfg.Claude.Script != "/opt/cli.js" {
		t.Errorf("unexpected entry/script %q %q", cfg.Claude.Entry, cfg.Claude.Script)
	}
	if cfg.Timeout() != time.Second || cfg.Claude.MaxBudgetUSD != 1.5 {
		t.Errorf("unexpected timeout/budget %v %v", cfg.Timeout(), cfg.Claude.MaxBudgetUSD)
	}
	if strings.Join(cfg.Claude.AllowedTools, ",") != "Read,Bash" {
		t.Errorf("unexpected tools %v", cfg.Claude.AllowedTools)
	}
	if !cfg.Claude.SkipPermissions || strings.Join(cfg.Claude.AllowedDirectories, ",") != "/a,/b" {
		t.Errorf("unexpected permissions %+v", cfg.Claude)
	}
	if cfg.Claude.ExtraPath != "/opt/bin" || cfg.SessionMaxAge() != time.Minute || cfg.LogLevel != "debug" {
		t.Errorf("unexpected overrides %+v", cfg)
	}
}

func TestLoad_InvalidEnvIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-port")
	t.Setenv("CLAUDE_MAX_BUDGET_USD", "free")

	cfg, err := Load(tempConfigPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8787 || cfg.Claude.MaxBudgetUSD != 5 {
		t.Errorf("invalid env values should fall back to defaults, got %d %v", cfg.Server.Port, cfg.Claude.MaxBudgetUSD)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "log_level: warn\nserver:\n  port: 7000\nclaude:\n  allowed_tools: [Read, Grep]\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" || cfg.Server.Port != 7000 {
		t.Errorf("unexpected yaml values %q %d", cfg.LogLevel, cfg.Server.Port)
	}
	if strings.Join(cfg.Claude.AllowedTools, ",") != "Read,Grep" {
		t.Errorf("unexpected tools %v", cfg.Claude.AllowedTools)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected unset fields to keep defaults, got host %q", cfg.Server.Host)
	}

	if err := SetValue(path, "server.port", "7100"); err != nil {
		t.Fatal(err)
	}
	v, err := GetValue(path, "server.port")
	if err != nil {
		t.Fatal(err)
	}
	if v != 7100 {
		t.Errorf("expected server.port=7100 from yaml, got %v (%T)", v, v)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	// Verify the file is valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{
		DataDir:  "/tmp/test",
		LogLevel: "debug",
	}
	cfg.Claude.Path = "claude"
	cfg.Claude.TimeoutMs = 2000

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}

	if m["data_dir"] != "/tmp/test" {
		t.Errorf("expected data_dir=/tmp/test, got %v", m["data_dir"])
	}
	if m["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", m["log_level"])
	}

	claude, ok := m["claude"].(map[string]any)
	if !ok {
		t.Fatalf("expected claude to be map, got %T", m["claude"])
	}
	if claude["path"] != "claude" {
		t.Errorf("expected claude.path=claude, got %v", claude["path"])
	}
	// JSON numbers are float64
	if claude["timeout_ms"] != float64(2000) {
		t.Errorf("expected claude.timeout_ms=2000, got %v", claude["timeout_ms"])
	}
}

func TestListValues_NoMask(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
	}
	cfg.Claude.APIKey = "sk-ant-secret-1234"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}

	// Secrets should be unmasked
	if flat["claude.api_key"] != "sk-ant-secret-1234" {
		t.Errorf("expected unmasked claude.api_key, got %v", flat["claude.api_key"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestListValues_WithMask(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
	}
	cfg.Claude.APIKey = "sk-ant-secret-1234"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}

	// Secrets should be masked
	if flat["claude.api_key"] != "***1234" {
		t.Errorf("expected masked claude.api_key=***1234, got %v", flat["claude.api_key"])
	}

	// Non-secrets should be unchanged
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{
		LogLevel:      "debug",
		MaxConcurrent: 8,
	}
	cfg.Claude.Path = "/opt/claude"
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "claude.path")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "/opt/claude" {
		t.Errorf("expected claude.path=/opt/claude, got %v", v)
	}

	v, err = GetValue(path, "max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	// JSON numbers are float64
	if v != float64(8) {
		t.Errorf("expected max_concurrent=8, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestSetValue_String(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	cfg.Claude.Path = "claude"
	writeTestConfig(t, path, cfg)

	// Set a string value
	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	// Verify it was set
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug after set, got %v", v)
	}

	// Verify other values are preserved
	v, err = GetValue(path, "claude.path")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "claude" {
		t.Errorf("expected claude.path=claude (preserved), got %v", v)
	}
}

func TestSetValue_Numeric(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{MaxConcurrent: 2}
	writeTestConfig(t, path, cfg)

	// Set a numeric value (JSON parseable)
	if err := SetValue(path, "max_concurrent", "16"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "max_concurrent")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != float64(16) {
		t.Errorf("expected max_concurrent=16, got %v (%T)", v, v)
	}
}

func TestSetValue_Boolean(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	// Set a boolean value (JSON parseable)
	if err := SetValue(path, "some_flag", "true"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "some_flag")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != true {
		t.Errorf("expected some_flag=true, got %v (%T)", v, v)
	}
}

func TestSetValue_Float(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Claude.MaxBudgetUSD = 5
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "claude.max_budget_usd", "0.3"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "claude.max_budget_usd")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != 0.3 {
		t.Errorf("expected claude.max_budget_usd=0.3, got %v (%T)", v, v)
	}
}

func TestSetValue_NestedKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Claude.Path = "claude"
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "claude.path", "/usr/bin/claude"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "claude.path")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "/usr/bin/claude" {
		t.Errorf("expected claude.path=/usr/bin/claude, got %v", v)
	}
}

func TestSetValue_NewNestedKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	// Set a new nested key that doesn't exist in Config struct
	if err := SetValue(path, "custom.setting", "value"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "custom.setting")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "value" {
		t.Errorf("expected custom.setting=value, got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	err := SetValue(path, "log_level", "debug")
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestGetValue_NonexistentFile(t *testing.T) {
	clearEnv(t)
	// GetValue calls Load, which creates the file if it doesn't exist.
	// But if the directory doesn't exist, it should still work because
	// Load creates it. Let's test with a valid temp dir.
	path := tempConfigPath(t)

	// File doesn't exist yet; Load will create it with defaults
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	// Default log_level is "info"
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.json")

	cfg := &Config{LogLevel: "warn"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}
