package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RegisterBuiltins adds the gateway's server-side tools to a router.
func RegisterBuiltins(r *Router) {
	r.Register(Definition{
		Name:        "echo",
		Description: "Echo back the input text (for testing)",
		Kind:        KindServer,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"]
		}`),
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			text, ok := args["text"].(string)
			if !ok {
				return nil, fmt.Errorf("echo requires a text argument")
			}
			return map[string]any{"echo": text}, nil
		},
	})

	r.Register(Definition{
		Name:        "get_current_time",
		Description: "Get the current server time",
		Kind:        KindServer,
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(context.Context, map[string]any) (any, error) {
			return map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}, nil
		},
	})
}
