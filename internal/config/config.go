package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir       string `json:"data_dir" yaml:"data_dir"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
	MaxConcurrent int    `json:"max_concurrent" yaml:"max_concurrent"`
	Model         string `json:"model" yaml:"model"`
	Tokenizer     string `json:"tokenizer" yaml:"tokenizer"`
	Server        struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`
	Claude struct {
		Path               string   `json:"path" yaml:"path"`
		Entry              string   `json:"entry" yaml:"entry"`
		Script             string   `json:"script" yaml:"script"`
		TimeoutMs          int      `json:"timeout_ms" yaml:"timeout_ms"`
		MaxBudgetUSD       float64  `json:"max_budget_usd" yaml:"max_budget_usd"`
		AllowedTools       []string `json:"allowed_tools" yaml:"allowed_tools"`
		SkipPermissions    bool     `json:"dangerously_skip_permissions" yaml:"dangerously_skip_permissions"`
		AllowedDirectories []string `json:"allowed_directories" yaml:"allowed_directories"`
		ExtraPath          string   `json:"extra_path" yaml:"extra_path"`
		APIKey             string   `json:"api_key" yaml:"api_key"`
	} `json:"claude" yaml:"claude"`
	Sessions struct {
		File          string `json:"file" yaml:"file"`
		MaxAgeMs      int64  `json:"max_age_ms" yaml:"max_age_ms"`
		PruneSchedule string `json:"prune_schedule" yaml:"prune_schedule"`
	} `json:"sessions" yaml:"sessions"`
}

// DefaultPath returns ~/.claudebridge/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".claudebridge", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".claudebridge"),
		MaxConcurrent: 4,
	}
	cfg.LogLevel = "info"
	cfg.Model = "claude-code"
	cfg.Tokenizer = "cl100k_base"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8787
	cfg.Claude.Path = "claude"
	cfg.Claude.TimeoutMs = 300_000
	cfg.Claude.MaxBudgetUSD = 5
	cfg.Claude.AllowedTools = []string{"Read", "Glob", "Grep", "WebSearch", "WebFetch"}
	cfg.Sessions.MaxAgeMs = int64(24 * time.Hour / time.Millisecond)
	cfg.Sessions.PruneSchedule = "@every 10m"
	return cfg
}

// Load reads the config at path over the defaults, writing the defaults
// there first if the file does not exist. Environment variables override
// both. Paths ending in .yaml or .yml are read as YAML.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides cfg from the environment (highest precedence). Values
// that do not parse are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	envInt("PORT", &cfg.Server.Port)
	if v := os.Getenv("CLAUDE_PATH"); v != "" {
		cfg.Claude.Path = v
	}
	if v := os.Getenv("CLAUDE_ENTRY"); v != "" {
		cfg.Claude.Entry = v
	}
	if v := os.Getenv("CLAUDE_SCRIPT"); v != "" {
		cfg.Claude.Script = v
	}
	envInt("CLAUDE_TIMEOUT_MS", &cfg.Claude.TimeoutMs)
	if v := os.Getenv("CLAUDE_MAX_BUDGET_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Claude.MaxBudgetUSD = f
		} else {
			slog.Warn("ignoring invalid env value", "name", "CLAUDE_MAX_BUDGET_USD", "value", v)
		}
	}
	if v := os.Getenv("CLAUDE_ALLOWED_TOOLS"); v != "" {
		cfg.Claude.AllowedTools = splitList(v)
	}
	if v := os.Getenv("CLAUDE_DANGEROUSLY_SKIP_PERMISSIONS"); v != "" {
		cfg.Claude.SkipPermissions = v == "true"
	}
	if v := os.Getenv("CLAUDE_ALLOWED_DIRECTORIES"); v != "" {
		cfg.Claude.AllowedDirectories = splitList(v)
	}
	if v := os.Getenv("CLAUDE_EXTRA_PATH"); v != "" {
		cfg.Claude.ExtraPath = v
	}
	if v := os.Getenv("SESSION_MAX_AGE_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Sessions.MaxAgeMs = n
		} else {
			slog.Warn("ignoring invalid env value", "name", "SESSION_MAX_AGE_MS", "value", v)
		}
	}
	if v := os.Getenv("CLAUDEBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("ignoring invalid env value", "name", name, "value", v)
		return
	}
	*dst = n
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Timeout is the per-invocation CLI timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Claude.TimeoutMs) * time.Millisecond
}

// SessionMaxAge is how long an unused session stays resumable.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Sessions.MaxAgeMs) * time.Millisecond
}

// SessionsFile is the registry file, defaulting to sessions.json in DataDir.
func (c *Config) SessionsFile() string {
	if c.Sessions.File != "" {
		return c.Sessions.File
	}
	return filepath.Join(c.DataDir, "sessions.json")
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	data, err := marshal(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

// ToMap converts cfg to a nested map using its JSON field names. Numbers
// come back as float64.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns cfg as a flat dot-keyed map, with secrets masked when
// mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value stored under a dot-separated key in the config
// file at path. The file is created with defaults if missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dot-separated key in the existing config
// file at path. value is parsed as JSON when possible (numbers, booleans,
// arrays) and kept as a string otherwise. Keys not known to Config are kept.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(raw)

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	data, err := marshal(path, Unflatten(flat))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, data)
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	raw := make(map[string]any)
	if err := unmarshal(path, data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return raw, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func unmarshal(path string, data []byte, v any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func marshal(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
