package anthropic

import "encoding/json"

// messagesRequest is the Messages API request body.
type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	Stream    bool          `json:"stream"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// streamEvent is one typed event from the Messages SSE stream. Only the
// fields the adapter inspects are modeled.
type streamEvent struct {
	Type  string     `json:"type"`
	Delta eventDelta `json:"delta"`
}

type eventDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	eventContentBlockDelta = "content_block_delta"
	eventMessageStop       = "message_stop"
	deltaTypeText          = "text_delta"
)
