package api

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Mode controls how the gateway treats tool calls produced by the model.
// In "agent" mode buffered tool calls are executed after streaming; in
// "ask" and "plan" modes they are discarded.
type Mode string

const (
	ModeAsk   Mode = "ask"
	ModeAgent Mode = "agent"
	ModePlan  Mode = "plan"
)

// Message is a single conversation turn. The ordered message sequence
// forms the model input and is immutable once built.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToolSpec describes a tool the client offers to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ChatRequest is the body of POST /api/chat-completion-streaming.
type ChatRequest struct {
	Message    string     `json:"message"`
	WorkflowID string     `json:"workflowId"`
	UserID     string     `json:"userId"`
	Model      string     `json:"model"`
	Mode       Mode       `json:"mode"`
	Stream     *bool      `json:"stream,omitempty"`
	Tools      []ToolSpec `json:"tools,omitempty"`
}

// ToolCall is a fully materialized function-invocation request recorded
// by the orchestrator. Arguments are complete by the time the call is
// buffered; they are never streamed incrementally past this point.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing one tool call. At most one of
// Result and Error is meaningful; both may be absent for a tool that
// succeeded with a null result.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}
