// Package gateway admits messages requests per conversation, drives the CLI
// through the event source and persists the resulting session handles.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/user/claudebridge/internal/event"
	"github.com/user/claudebridge/internal/observability"
	"github.com/user/claudebridge/internal/prompt"
	"github.com/user/claudebridge/internal/protocol"
	"github.com/user/claudebridge/internal/runtime"
	"github.com/user/claudebridge/internal/translate"
	"github.com/user/claudebridge/internal/types"
)

// ErrEmptyPrompt is returned when no prompt text can be extracted from the
// request messages.
var ErrEmptyPrompt = errors.New("could not extract prompt from messages")

// Request is one messages call after HTTP decoding.
type Request struct {
	Key      types.ConversationKey
	Model    string
	System   string
	Messages []protocol.InputMessage
}

// FrameWriter receives stream frames in order.
type FrameWriter interface {
	WriteFrame(protocol.Frame) error
}

// Gateway resolves sessions, runs the CLI and translates its output.
type Gateway struct {
	registry types.SessionRegistry
	source   runtime.Source
	Queue    *Queue
	retry    *RetryPolicy
	tokens   *prompt.Engine
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithRetryPolicy overrides the resume fallback policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithTokenCounter sets the engine used for usage.input_tokens.
func WithTokenCounter(e *prompt.Engine) Option {
	return func(g *Gateway) { g.tokens = e }
}

// New creates a Gateway. queue may be shared with other gateways.
func New(registry types.SessionRegistry, source runtime.Source, queue *Queue, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		source:   source,
		Queue:    queue,
		retry:    DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stream runs req and writes protocol frames to w as they are produced. A
// stream that ends without a result record is still closed with
// message_delta and message_stop. An error returned after frames were
// written means the stream was cut short.
func (g *Gateway) Stream(ctx context.Context, req Request, w FrameWriter) error {
	start := time.Now()
	var resumed bool
	err := g.Queue.Do(ctx, req.Key, func(ctx context.Context) error {
		s := &streamSink{w: w, model: req.Model, st: translate.NewStreamState(req.Model)}
		var err error
		_, resumed, err = g.execute(ctx, req, s)
		return err
	})
	observability.RecordCompletion("stream", resumed, outcome(err), time.Since(start))
	return err
}

// Complete runs req to the end and returns the aggregate message.
func (g *Gateway) Complete(ctx context.Context, req Request) (*protocol.Message, error) {
	start := time.Now()
	var msg *protocol.Message
	var resumed bool
	err := g.Queue.Do(ctx, req.Key, func(ctx context.Context) error {
		s := &bufferSink{model: req.Model}
		inv, r, err := g.execute(ctx, req, s)
		resumed = r
		if err != nil {
			return err
		}
		msg = s.message
		msg.Usage.InputTokens = g.tokens.CountTokens(runtime.StdinContent(inv))
		return nil
	})
	observability.RecordCompletion("aggregate", resumed, outcome(err), time.Since(start))
	return msg, err
}

// execute runs one request inside its queue slot: look up the session,
// start the CLI, feed events to s, and persist whatever session handle the
// run reported. A resumed run rejected before anything reached the caller
// is retried fresh.
func (g *Gateway) execute(ctx context.Context, req Request, s sink) (runtime.Invocation, bool, error) {
	resumeID, resumed := g.registry.Get(ctx, req.Key)

	for attempt := 1; ; attempt++ {
		inv, err := g.invocation(req, resumeID)
		if err != nil {
			return inv, resumed, err
		}
		slog.Info("running claude",
			"conversation", string(req.Key),
			"resume", inv.ResumeID != "",
			"attempt", attempt,
		)

		err = g.attempt(ctx, inv, s)
		if err == nil {
			err = s.finish()
		}
		if err == nil {
			g.persist(ctx, req.Key, s.session())
			return inv, resumed, nil
		}

		if !s.committed() && g.retry.ShouldRetry(err, inv.ResumeID != "", attempt) {
			slog.Warn("resume failed, retrying without session",
				"conversation", string(req.Key),
				"session", inv.ResumeID,
				"error", err,
			)
			observability.RecordResumeFallback()
			g.registry.Remove(ctx, req.Key)
			resumeID = ""
			s.reset()
			continue
		}

		slog.Error("run failed", "conversation", string(req.Key), "error", err)
		g.persist(ctx, req.Key, s.session())
		return inv, resumed, err
	}
}

func (g *Gateway) invocation(req Request, resumeID string) (runtime.Invocation, error) {
	text := prompt.Build(req.Messages, resumeID != "")
	if strings.TrimSpace(text) == "" {
		return runtime.Invocation{}, ErrEmptyPrompt
	}
	return runtime.Invocation{
		Prompt:       text,
		SystemPrompt: req.System,
		ResumeID:     resumeID,
	}, nil
}

// attempt drives one CLI run. If the sink fails, the run is cancelled and
// its remaining events drained so the process is reaped before returning.
func (g *Gateway) attempt(ctx context.Context, inv runtime.Invocation, s sink) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := g.source.Start(ctx, inv)
	if err != nil {
		return err
	}
	for ev := range stream.Events() {
		if err := s.handle(ev); err != nil {
			cancel()
			for range stream.Events() {
			}
			return err
		}
	}
	return stream.Err()
}

func (g *Gateway) persist(ctx context.Context, key types.ConversationKey, sessionID string) {
	if sessionID == "" {
		return
	}
	g.registry.Set(ctx, key, sessionID)
	slog.Info("saved session", "conversation", string(key), "session", sessionID)
}

func outcome(err error) string {
	var exitErr *runtime.ExitError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyPrompt):
		return "invalid_request"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &exitErr) && exitErr.TimedOut:
		return "timeout"
	case errors.As(err, &exitErr):
		return "cli_error"
	default:
		return "error"
	}
}

// sink consumes the events of a run.
type sink interface {
	handle(event.Event) error
	// finish is called once after a clean run.
	finish() error
	// committed reports whether anything reached the caller.
	committed() bool
	// session is the last session handle the run reported.
	session() string
	// reset discards everything from a failed attempt before a retry.
	reset()
}

type streamSink struct {
	w       FrameWriter
	model   string
	st      *translate.StreamState
	written int
}

func (s *streamSink) handle(ev event.Event) error {
	for _, f := range translate.Event(ev, s.st) {
		if err := s.w.WriteFrame(f); err != nil {
			return err
		}
		s.written++
	}
	return nil
}

func (s *streamSink) finish() error {
	if s.st.Finished() {
		return nil
	}
	return s.handle(translate.SyntheticResult())
}

func (s *streamSink) committed() bool { return s.written > 0 }

func (s *streamSink) session() string { return s.st.SessionID }

func (s *streamSink) reset() {
	s.st = translate.NewStreamState(s.model)
	s.written = 0
}

type bufferSink struct {
	model     string
	events    []event.Event
	message   *protocol.Message
	sessionID string
}

func (s *bufferSink) handle(ev event.Event) error {
	s.events = append(s.events, ev)
	if sid := ev.Session(); sid != "" {
		s.sessionID = sid
	}
	return nil
}

func (s *bufferSink) finish() error {
	s.message, s.sessionID = translate.Aggregate(s.events, s.model)
	return nil
}

func (s *bufferSink) committed() bool { return false }

func (s *bufferSink) session() string { return s.sessionID }

func (s *bufferSink) reset() {
	s.events = nil
	s.sessionID = ""
}
