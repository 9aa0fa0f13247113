// Package engine orchestrates one chat-completion stream: it resolves
// the provider, frames the model input, relays content as it arrives,
// buffers tool calls for execution after the model finishes, and closes
// every stream with exactly one terminal event.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/observability"
	"github.com/simstudio/copilot-gateway/pkg/provider"
	"github.com/simstudio/copilot-gateway/pkg/storage"
	"github.com/simstudio/copilot-gateway/pkg/tools"
	"github.com/simstudio/copilot-gateway/pkg/transport"
	"github.com/simstudio/copilot-gateway/pkg/workflow"
)

// ContextLoader fetches workflow context for the system prompt. A nil
// return means the chat proceeds without one.
type ContextLoader interface {
	Load(ctx context.Context, workflowID string) *workflow.Context
}

var _ ContextLoader = (*workflow.Loader)(nil)

// Engine is the stream orchestrator. It implements transport.ChatStreamer.
type Engine struct {
	resolver Resolver
	router   *tools.Router
	store    storage.MessageStore // nil disables history and persistence
	loader   ContextLoader        // nil disables the workflow system prompt
	cfg      Config
}

var _ transport.ChatStreamer = (*Engine)(nil)

// New creates an Engine. resolver and router must not be nil; store and
// loader are optional.
func New(resolver Resolver, router *tools.Router, store storage.MessageStore, loader ContextLoader, cfg Config) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine: resolver must not be nil")
	}
	if router == nil {
		return nil, fmt.Errorf("engine: router must not be nil")
	}
	return &Engine{
		resolver: resolver,
		router:   router,
		store:    store,
		loader:   loader,
		cfg:      cfg,
	}, nil
}

// StreamChat runs one chat request to completion. An error return means
// nothing was streamed yet; once the first event has been written, all
// failures surface as a single in-band terminal error event instead.
func (e *Engine) StreamChat(ctx context.Context, req *api.ChatRequest, w transport.EventWriter) error {
	prov, model, err := e.resolver.Resolve(ctx, req.UserID, req.Model)
	if err != nil {
		return err
	}

	messages := e.buildMessages(ctx, req)

	start := time.Now()
	ch, err := prov.Chat(ctx, &provider.ChatParams{
		Messages: messages,
		Model:    model,
		Tools:    req.Tools,
	})
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(prov.Name(), model, "error").Inc()
		return err
	}

	var transcript strings.Builder
	var pending []api.ToolCall
	var streamErr *api.APIError

	for chunk := range ch {
		switch chunk.Type {
		case provider.ChunkContent:
			transcript.WriteString(chunk.Text)
			if err := e.emit(ctx, w, api.NewContentEvent(chunk.Text)); err != nil {
				drain(ch)
				e.recordProvider(prov.Name(), model, start, "cancelled")
				return nil
			}

		case provider.ChunkToolCall:
			pending = append(pending, chunk.ToolCall)

		case provider.ChunkError:
			streamErr = asAPIError(chunk.Err)
		}
	}

	if streamErr != nil {
		e.recordProvider(prov.Name(), model, start, "error")
		slog.Error("upstream stream failed",
			"provider", prov.Name(),
			"model", model,
			"error", streamErr.Message,
		)
		_ = e.emit(ctx, w, api.NewErrorEvent(streamErr.Message, string(streamErr.Type)))
		return nil
	}
	e.recordProvider(prov.Name(), model, start, "success")

	switch {
	case req.Mode == api.ModeAgent && len(pending) > 0:
		if !e.executeTools(ctx, pending, w) {
			return nil
		}
	case len(pending) > 0:
		slog.Debug("discarding buffered tool calls",
			"count", len(pending),
			"mode", string(req.Mode),
		)
	}

	responseID := api.NewResponseID()
	_ = e.emit(ctx, w, api.NewDoneEvent(responseID))

	e.persistExchange(req, transcript.String())
	return nil
}

// executeTools runs buffered tool calls in arrival order, one at a
// time, emitting the paired tool_call and tool_result events. Returns
// false when the client is gone and the stream should end silently.
func (e *Engine) executeTools(ctx context.Context, calls []api.ToolCall, w transport.EventWriter) bool {
	for _, call := range calls {
		if err := e.emit(ctx, w, api.NewToolCallEvent(call.ID, call.Name, marshalArguments(call.Arguments))); err != nil {
			return false
		}

		result := e.router.Execute(ctx, call)

		status := "success"
		if result.Error != "" {
			status = "error"
		}
		observability.ToolExecutionsTotal.WithLabelValues(call.Name, status).Inc()

		if err := e.emit(ctx, w, api.NewToolResultEvent(result)); err != nil {
			return false
		}
	}
	return true
}

// buildMessages frames the model input: workflow system prompt first,
// then stored history, then the current user message. Context loading
// failures degrade to a shorter frame rather than failing the request.
func (e *Engine) buildMessages(ctx context.Context, req *api.ChatRequest) []api.Message {
	var messages []api.Message

	if e.loader != nil && req.WorkflowID != "" {
		if wf := e.loader.Load(ctx, req.WorkflowID); wf != nil {
			messages = append(messages, api.Message{
				Role:    api.RoleSystem,
				Content: workflow.BuildSystemPrompt(wf),
			})
		}
	}

	if e.store != nil && req.WorkflowID != "" {
		history, err := e.store.History(ctx, req.WorkflowID, e.cfg.historyLimit())
		if err != nil {
			slog.Error("loading chat history", "workflow_id", req.WorkflowID, "error", err.Error())
		}
		for _, m := range history {
			messages = append(messages, api.Message{Role: api.Role(m.Role), Content: m.Content})
		}
	}

	return append(messages, api.Message{Role: api.RoleUser, Content: req.Message})
}

// persistExchange stores the user message and assistant transcript in
// the background. Persistence failures are logged, never surfaced.
func (e *Engine) persistExchange(req *api.ChatRequest, transcript string) {
	if e.store == nil {
		return
	}

	userID, workflowID := req.UserID, req.WorkflowID
	message := req.Message

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.persistTimeout())
		defer cancel()

		err := e.store.SaveMessage(ctx, &storage.ChatMessage{
			UserID:     userID,
			WorkflowID: workflowID,
			Role:       string(api.RoleUser),
			Content:    message,
		})
		if err != nil {
			slog.Error("storing user message", "workflow_id", workflowID, "error", err.Error())
			return
		}

		err = e.store.SaveMessage(ctx, &storage.ChatMessage{
			UserID:     userID,
			WorkflowID: workflowID,
			Role:       string(api.RoleAssistant),
			Content:    transcript,
		})
		if err != nil {
			slog.Error("storing assistant message", "workflow_id", workflowID, "error", err.Error())
		}
	}()
}

func (e *Engine) emit(ctx context.Context, w transport.EventWriter, ev api.StreamEvent) error {
	observability.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	return w.WriteEvent(ctx, ev)
}

func (e *Engine) recordProvider(providerName, model string, start time.Time, status string) {
	observability.ProviderRequestsTotal.WithLabelValues(providerName, model, status).Inc()
	observability.ProviderLatency.WithLabelValues(providerName, model).Observe(time.Since(start).Seconds())
}

// drain consumes the rest of a chunk channel in the background so the
// producing goroutine can finish after the client has gone away.
func drain(ch <-chan provider.StreamChunk) {
	go func() {
		for range ch {
		}
	}()
}

// marshalArguments renders tool arguments as the JSON string carried by
// the tool_call event. Absent arguments render as an empty object.
func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// asAPIError normalizes in-stream failures to the error taxonomy.
func asAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if err == nil {
		return api.NewUpstreamStreamError("unknown stream error")
	}
	return api.NewUpstreamStreamError(err.Error())
}
