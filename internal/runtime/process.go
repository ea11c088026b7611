package runtime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/user/claudebridge/internal/event"
)

// stderrLimit is how much stderr is kept in an ExitError.
const stderrLimit = 500

// ExitError reports a CLI run that did not exit cleanly.
type ExitError struct {
	// Code is the exit code, -1 when the process was killed by a signal.
	Code int
	// Signal names the terminating signal, empty for a normal exit.
	Signal string
	// TimedOut is set when the invocation timeout expired.
	TimedOut bool
	// Stderr holds the first 500 characters of the process's stderr.
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("claude killed by signal %s: %s", e.Signal, e.Stderr)
	}
	return fmt.Sprintf("claude exited with code %d: %s", e.Code, e.Stderr)
}

// Start launches the CLI. The returned stream yields one event per decodable
// stdout line; malformed lines are skipped.
func (r *Runner) Start(ctx context.Context, inv Invocation) (Stream, error) {
	var cancel context.CancelFunc
	if r.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	name, args := r.Command(inv.ResumeID)
	stdin := StdinContent(inv)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = r.env(os.Environ())
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.opts.WaitDelay

	stderr := &stderrBuffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	slog.Info("spawning claude",
		"command", name,
		"resume", inv.ResumeID,
		"stdin_chars", utf8.RuneCountInString(stdin),
	)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start claude: %w", err)
	}

	p := &process{events: make(chan event.Event)}
	go p.run(ctx, cancel, cmd, stdout, stderr)
	return p, nil
}

type process struct {
	events chan event.Event
	err    error
}

func (p *process) Events() <-chan event.Event { return p.events }

func (p *process) Err() error { return p.err }

func (p *process) run(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, stderr *stderrBuffer) {
	defer cancel()

	reader := bufio.NewReader(stdout)
	for {
		line, readErr := reader.ReadBytes('\n')
		if ev := decodeLine(line); ev != nil {
			select {
			case p.events <- ev:
			case <-ctx.Done():
				readErr = ctx.Err()
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				slog.Debug("stopped reading claude output", "error", readErr)
			}
			break
		}
	}

	waitErr := cmd.Wait()
	p.err = exitError(ctx, waitErr, stderr.Truncated())
	slog.Info("claude process closed", "state", cmd.ProcessState.String())
	close(p.events)
}

// decodeLine parses one NDJSON line. Blank and malformed lines yield nil.
func decodeLine(line []byte) event.Event {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	ev, err := event.Parse(line)
	if err != nil {
		slog.Debug("skipping malformed claude output line", "error", err)
		return nil
	}
	return ev
}

func exitError(ctx context.Context, waitErr error, stderr string) error {
	if waitErr == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(waitErr, &ee) {
		return fmt.Errorf("wait claude: %w", waitErr)
	}
	out := &ExitError{
		Code:     ee.ExitCode(),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Stderr:   stderr,
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		out.Signal = ws.Signal().String()
	}
	if out.TimedOut {
		slog.Warn("claude timed out", "signal", out.Signal)
	}
	return out
}

// stderrBuffer collects stderr for error reporting and logs each chunk.
type stderrBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *stderrBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() < 4*stderrLimit {
		s.buf.Write(p)
	}
	if text := strings.TrimSpace(string(p)); text != "" {
		slog.Debug("claude stderr", "text", truncate(text, 200))
	}
	return len(p), nil
}

// Truncated returns the first 500 characters written.
func (s *stderrBuffer) Truncated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return truncate(s.buf.String(), stderrLimit)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
