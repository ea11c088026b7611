// Package runtime runs the claude CLI and turns its stream-json output into
// events.
package runtime

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/user/claudebridge/internal/event"
)

// Invocation is one CLI run.
type Invocation struct {
	Prompt       string
	SystemPrompt string
	// ResumeID, when set, is passed as --resume.
	ResumeID string
}

// Stream is a running invocation. Events is closed when the process has
// exited; Err is valid only after that.
type Stream interface {
	Events() <-chan event.Event
	Err() error
}

// Source starts invocations. Cancelling ctx stops the process.
type Source interface {
	Start(ctx context.Context, inv Invocation) (Stream, error)
}

// Options configures how the CLI is launched.
type Options struct {
	Path   string
	Entry  string
	Script string

	Timeout   time.Duration
	WaitDelay time.Duration

	MaxBudgetUSD       float64
	AllowedTools       []string
	SkipPermissions    bool
	AllowedDirectories []string
	ExtraPath          string

	// APIKey, when set, is exported to the CLI as ANTHROPIC_API_KEY.
	APIKey string
}

// Runner is the Source backed by the real CLI.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Path == "" {
		opts.Path = "claude"
	}
	if opts.WaitDelay <= 0 {
		opts.WaitDelay = 5 * time.Second
	}
	return &Runner{opts: opts}
}

// Command returns the executable and argument list for an invocation.
// With both Entry and Script set the CLI is run as "<entry> <script> ...".
func (r *Runner) Command(resumeID string) (string, []string) {
	var name string
	var args []string
	if r.opts.Entry != "" && r.opts.Script != "" {
		name = r.opts.Entry
		args = append(args, r.opts.Script)
	} else {
		name = r.opts.Path
	}

	args = append(args,
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--max-budget-usd", strconv.FormatFloat(r.opts.MaxBudgetUSD, 'f', -1, 64),
	)
	for _, tool := range r.opts.AllowedTools {
		args = append(args, "--allowed-tools", tool)
	}
	if r.opts.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	for _, dir := range r.opts.AllowedDirectories {
		args = append(args, "--add-dir", dir)
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	return name, args
}

// StdinContent is what gets piped to the CLI: the prompt, prefixed with a
// <system> section when a system prompt is present.
func StdinContent(inv Invocation) string {
	if inv.SystemPrompt == "" {
		return inv.Prompt
	}
	return "<system>\n" + inv.SystemPrompt + "\n</system>\n\n" + inv.Prompt
}

var strippedEnv = map[string]bool{
	"CLAUDECODE":             true,
	"CLAUDE_CODE":            true,
	"CLAUDE_CODE_ENTRYPOINT": true,
}

// Env copies base without the variables that make the CLI think it is
// running nested inside itself, and prepends extraPath to PATH.
func Env(base []string, extraPath string) []string {
	out := make([]string, 0, len(base)+1)
	sawPath := false
	for _, kv := range base {
		name, value, _ := strings.Cut(kv, "=")
		if strippedEnv[name] {
			continue
		}
		if name == "PATH" && extraPath != "" {
			kv = "PATH=" + extraPath + ":" + value
			sawPath = true
		}
		out = append(out, kv)
	}
	if extraPath != "" && !sawPath {
		out = append(out, "PATH="+extraPath+":")
	}
	return out
}

// env is the process environment for one run.
func (r *Runner) env(base []string) []string {
	env := Env(base, r.opts.ExtraPath)
	if r.opts.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+r.opts.APIKey)
	}
	return env
}

var (
	_ Source = (*Runner)(nil)
	_ Source = (*ScriptedSource)(nil)
)
