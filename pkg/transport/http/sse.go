package http

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/transport"
)

// sseEventWriter implements transport.EventWriter over an HTTP
// response. Headers are committed lazily on the first event so that
// failures before streaming can still produce a JSON error response.
type sseEventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu        sync.Mutex
	started   bool
	completed bool
}

var _ transport.EventWriter = (*sseEventWriter)(nil)

func newSSEEventWriter(w http.ResponseWriter) *sseEventWriter {
	return &sseEventWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteEvent frames one event as "data: {json}\n\n" and flushes it.
// Writes after a terminal event are rejected.
func (s *sseEventWriter) WriteEvent(_ context.Context, event api.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completed {
		return errors.New("cannot write event: stream is completed")
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.started = true
	}

	frame, err := api.EncodeSSE(event)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}

	if event.IsTerminal() {
		s.completed = true
	}
	return nil
}

// hasStarted reports whether any event reached the wire. Once true,
// the response status and headers are committed.
func (s *sseEventWriter) hasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
