package api

import (
	"net/http"

	"github.com/user/claudebridge/internal/protocol"
)

// sseWriter writes frames as server-sent events, sending the response
// headers lazily with the first frame.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

// WriteFrame implements gateway.FrameWriter.
func (s *sseWriter) WriteFrame(f protocol.Frame) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := f.WriteTo(s.w); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Started reports whether headers and at least one frame were sent.
func (s *sseWriter) Started() bool { return s.started }
