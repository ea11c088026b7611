package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/user/claudebridge/internal/event"
)

// Script is one canned run: the stdout lines it prints and the error it ends
// with.
type Script struct {
	Lines []string
	Err   error
}

// ScriptedSource replays scripts in order instead of spawning the CLI.
type ScriptedSource struct {
	mu      sync.Mutex
	scripts []Script
	calls   []Invocation
}

// NewScriptedSource creates a source that serves one script per Start.
func NewScriptedSource(scripts ...Script) *ScriptedSource {
	return &ScriptedSource{scripts: scripts}
}

func (s *ScriptedSource) Start(ctx context.Context, inv Invocation) (Stream, error) {
	s.mu.Lock()
	s.calls = append(s.calls, inv)
	if len(s.scripts) == 0 {
		s.mu.Unlock()
		return nil, errors.New("start claude: no script left")
	}
	sc := s.scripts[0]
	s.scripts = s.scripts[1:]
	s.mu.Unlock()

	p := &process{events: make(chan event.Event)}
	go func() {
		defer close(p.events)
		for _, line := range sc.Lines {
			ev := decodeLine([]byte(line))
			if ev == nil {
				continue
			}
			select {
			case p.events <- ev:
			case <-ctx.Done():
				p.err = ctx.Err()
				return
			}
		}
		p.err = sc.Err
	}()
	return p, nil
}

// Calls returns the invocations started so far.
func (s *ScriptedSource) Calls() []Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Invocation(nil), s.calls...)
}
