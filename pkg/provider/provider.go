package provider

import (
	"context"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// Provider abstracts an upstream chat-completion backend. The caller
// never inspects which concrete variant produced a chunk.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// Chat opens a streaming completion and returns a channel of
	// normalized chunks. The channel is closed by the provider when the
	// stream completes or fails.
	//
	// An error return means the upstream connection could not be opened;
	// no chunk has been yielded and the caller may still report the
	// failure at the HTTP level. A failure after chunks have been
	// yielded is delivered as a final ChunkError on the channel instead.
	Chat(ctx context.Context, params *ChatParams) (<-chan StreamChunk, error)
}

// ChatParams is the backend-facing request: the resolved message
// sequence plus model and tool definitions. It carries no transport or
// storage concerns.
type ChatParams struct {
	Messages []api.Message
	Model    string
	Tools    []api.ToolSpec
}

// ChunkType classifies a normalized streaming chunk.
type ChunkType int

const (
	// ChunkContent carries an incremental text fragment.
	ChunkContent ChunkType = iota

	// ChunkToolCall carries one tool-call fragment with fully
	// materialized arguments.
	ChunkToolCall

	// ChunkError terminates the sequence after streaming has begun.
	// It is always the last chunk before the channel closes.
	ChunkError
)

// StreamChunk is the smallest unit a provider adapter yields. It is a
// tagged union: Text for ChunkContent, ToolCall for ChunkToolCall, Err
// for ChunkError.
type StreamChunk struct {
	Type     ChunkType
	Text     string
	ToolCall api.ToolCall
	Err      error
}

// ContentChunk builds a text chunk.
func ContentChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkContent, Text: text}
}

// ToolCallChunk builds a tool-call fragment chunk.
func ToolCallChunk(call api.ToolCall) StreamChunk {
	return StreamChunk{Type: ChunkToolCall, ToolCall: call}
}

// ErrorChunk builds a terminal error chunk.
func ErrorChunk(err error) StreamChunk {
	return StreamChunk{Type: ChunkError, Err: err}
}
