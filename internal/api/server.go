// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/claudebridge/internal/gateway"
	"github.com/user/claudebridge/internal/observability"
	"github.com/user/claudebridge/internal/protocol"
	"github.com/user/claudebridge/internal/translate"
	"github.com/user/claudebridge/internal/types"
)

// maxBodyBytes caps a messages request body.
const maxBodyBytes = 32 << 20

// Messenger runs messages requests. *gateway.Gateway implements it.
type Messenger interface {
	Stream(ctx context.Context, req gateway.Request, w gateway.FrameWriter) error
	Complete(ctx context.Context, req gateway.Request) (*protocol.Message, error)
}

// SessionLister lists registry entries for the debug API.
type SessionLister interface {
	Entries(ctx context.Context) []types.SessionEntry
}

// Server is the HTTP surface: the Messages endpoint plus health, model
// listing, session listing and metrics.
type Server struct {
	messages Messenger
	sessions SessionLister
	port     int
	handler  http.Handler
}

// NewServer creates a Server. sessions may be nil, which disables
// /api/sessions. port is reported by /health.
func NewServer(messages Messenger, sessions SessionLister, port int) *Server {
	s := &Server{
		messages: messages,
		sessions: sessions,
		port:     port,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", s.handleMessages)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /api/sessions", s.handleAPISessions)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.handler = observability.Middleware(mux)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// messagesRequest is the JSON body for POST /v1/messages. System and message
// content may each be a string or an array of blocks.
type messagesRequest struct {
	Model     string                  `json:"model"`
	Messages  []protocol.InputMessage `json:"messages"`
	System    json.RawMessage         `json:"system"`
	Stream    bool                    `json:"stream"`
	MaxTokens int                     `json:"max_tokens"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var body messagesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, protocol.ErrorTypeInvalidRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, protocol.ErrorTypeInvalidRequest, "messages array is required")
		return
	}

	model := body.Model
	if model == "" {
		model = translate.DefaultModel
	}
	system := protocol.TextContent(body.System)
	req := gateway.Request{
		Key:      ConversationKey(r.Header, system, body.Messages),
		Model:    model,
		System:   system,
		Messages: body.Messages,
	}
	slog.Info("messages request",
		"conversation", string(req.Key),
		"stream", body.Stream,
		"messages", len(body.Messages),
	)

	if body.Stream {
		s.stream(w, r, req)
		return
	}

	msg, err := s.messages.Complete(r.Context(), req)
	if err != nil {
		status, errType := classify(err)
		writeError(w, status, errType, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// stream sends SSE frames as the run produces them. Headers go out with the
// first frame, so a run that fails before producing anything still gets a
// plain JSON error. After that, a failure is reported with one error frame.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, req gateway.Request) {
	sw := newSSEWriter(w)
	err := s.messages.Stream(r.Context(), req, sw)
	if err == nil {
		return
	}
	status, errType := classify(err)
	if !sw.Started() {
		writeError(w, status, errType, err.Error())
		return
	}
	slog.Error("stream failed after start", "conversation", string(req.Key), "error", err)
	if werr := sw.WriteFrame(protocol.NewErrorFrame(errType, err.Error())); werr != nil {
		slog.Debug("could not deliver error frame", "error", werr)
	}
}

func classify(err error) (int, string) {
	if errors.Is(err, gateway.ErrEmptyPrompt) {
		return http.StatusBadRequest, protocol.ErrorTypeInvalidRequest
	}
	return http.StatusInternalServerError, protocol.ErrorTypeAPI
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"bridge": "claude-code-cli",
		"port":   s.port,
	})
}

type modelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
	MaxTokens     int    `json:"max_tokens"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]modelInfo{
		"data": {{
			ID:            translate.DefaultModel,
			Name:          "Claude Code (Local CLI)",
			ContextWindow: 200000,
			MaxTokens:     16384,
		}},
	})
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, protocol.ErrorTypeAPI, "session listing not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Entries(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, protocol.NewError(errType, message))
}
