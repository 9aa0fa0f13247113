// Package transport defines the handler contracts and middleware chain
// between the HTTP layer and the stream orchestrator. The HTTP adapter
// in transport/http decodes requests, runs them through a ChatStreamer,
// and serializes the resulting events as SSE.
package transport

import (
	"context"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// EventWriter receives the ordered stream events produced for one chat
// request. Implementations flush each event to the client immediately.
type EventWriter interface {
	WriteEvent(ctx context.Context, ev api.StreamEvent) error
}

// EventWriterFunc adapts an ordinary function to an EventWriter.
type EventWriterFunc func(ctx context.Context, ev api.StreamEvent) error

// WriteEvent calls f(ctx, ev).
func (f EventWriterFunc) WriteEvent(ctx context.Context, ev api.StreamEvent) error {
	return f(ctx, ev)
}

// ChatStreamer handles one chat-completion-streaming request. An error
// return means the stream never started and maps to an HTTP error
// response; failures after the first event must instead surface as an
// in-band terminal error event.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req *api.ChatRequest, w EventWriter) error
}

// ChatStreamerFunc adapts an ordinary function to a ChatStreamer.
type ChatStreamerFunc func(ctx context.Context, req *api.ChatRequest, w EventWriter) error

// StreamChat calls f(ctx, req, w).
func (f ChatStreamerFunc) StreamChat(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
	return f(ctx, req, w)
}
