package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/debug"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

// parseSSEStream reads Chat Completions SSE chunks from body, translates
// each to normalized chunks, and sends them on ch. The channel is NOT
// closed by this function; the caller is responsible for closing it.
//
// SSE format expected:
//
//	data: {"choices":[{"delta":{...}}]}\n
//	\n
//	data: [DONE]\n
//	\n
//
// Every tool_calls delta entry is treated as one complete tool-call
// fragment with its id, name, and arguments taken verbatim. Argument
// fragments are NOT accumulated across deltas by call id; backends
// that split one call's arguments over multiple deltas will surface as
// multiple fragments. Malformed chunks are logged and skipped.
func parseSSEStream(ctx context.Context, body io.Reader, ch chan<- provider.StreamChunk) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		debug.Trace("providers", "openai chunk", "data", payload)

		if payload == "[DONE]" {
			return
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Warn("skipping malformed openai chunk",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			continue
		}

		translateChunk(&chunk, ch)
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ErrorChunk(api.NewUpstreamStreamError("openai stream read error: " + err.Error()))
	}
}

// translateChunk converts one delta object into zero or more normalized
// chunks on ch.
func translateChunk(chunk *chatCompletionChunk, ch chan<- provider.StreamChunk) {
	if len(chunk.Choices) == 0 {
		return
	}
	delta := chunk.Choices[0].Delta

	if delta.Content != nil && *delta.Content != "" {
		ch <- provider.ContentChunk(*delta.Content)
	}

	for _, tc := range delta.ToolCalls {
		call := api.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
		}
		if call.ID == "" {
			call.ID = "tc-" + uuid.NewString()
		}
		if tc.Function.Arguments != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("tool call arguments are not a JSON object, dropping",
					"call_id", call.ID,
					"tool", call.Name,
					"error", err.Error(),
				)
			} else {
				call.Arguments = args
			}
		}
		ch <- provider.ToolCallChunk(call)
	}
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
