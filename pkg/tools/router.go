// Package tools routes model-issued tool calls to their executors.
// Server tools run in-process; client tools are delegated to the host
// application over HTTP. Execution never fails the stream: every
// outcome, including an unknown tool, is captured in the ToolResult.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// Kind distinguishes where a tool executes.
type Kind string

const (
	// KindServer tools run in-process via their Handler.
	KindServer Kind = "server"
	// KindClient tools are delegated to the host application.
	KindClient Kind = "client"
)

// Handler executes a server tool. Arguments are the decoded JSON object
// from the tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes a registered tool.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Kind        Kind
	Handler     Handler // server tools only
}

// ClientExecutor delegates a client tool invocation to the host app.
type ClientExecutor interface {
	ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Router dispatches tool calls to client or server tools.
type Router struct {
	mu     sync.RWMutex
	tools  map[string]Definition
	client ClientExecutor
}

// NewRouter creates a Router. client may be nil when no host app is
// configured; client tools then fail with a descriptive result error.
func NewRouter(client ClientExecutor) *Router {
	return &Router{
		tools:  make(map[string]Definition),
		client: client,
	}
}

// Register adds or replaces a tool definition.
func (r *Router) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = def
	slog.Info("registered tool", "name", def.Name, "kind", def.Kind)
}

// Get returns the definition for a tool name.
func (r *Router) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all registered definitions.
func (r *Router) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	return defs
}

// Execute runs one tool call and returns its result. Failures of any
// kind, including an unknown tool or a panicking handler, are captured
// in the result's Error field; Execute itself never fails.
func (r *Router) Execute(ctx context.Context, call api.ToolCall) api.ToolResult {
	def, ok := r.Get(call.Name)
	if !ok {
		return api.ToolResult{
			ToolCallID: call.ID,
			Error:      "Tool not found: " + call.Name,
		}
	}

	result, err := r.dispatch(ctx, def, call)
	if err != nil {
		slog.Error("tool execution error",
			"tool", call.Name,
			"call_id", call.ID,
			"error", err.Error(),
		)
		return api.ToolResult{ToolCallID: call.ID, Error: err.Error()}
	}

	return api.ToolResult{ToolCallID: call.ID, Result: result}
}

func (r *Router) dispatch(ctx context.Context, def Definition, call api.ToolCall) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, rec)
		}
	}()

	switch def.Kind {
	case KindClient:
		if r.client == nil {
			return nil, fmt.Errorf("no host app configured for client tool %s", call.Name)
		}
		slog.Info("executing client tool", "name", call.Name)
		return r.client.ExecuteTool(ctx, call.Name, call.Arguments)

	case KindServer:
		if def.Handler == nil {
			return nil, fmt.Errorf("invalid tool configuration: %s", call.Name)
		}
		slog.Info("executing server tool", "name", call.Name)
		return def.Handler(ctx, call.Arguments)

	default:
		return nil, fmt.Errorf("invalid tool configuration: %s", call.Name)
	}
}
