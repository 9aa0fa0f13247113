package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/debug"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

// parseEventStream reads Messages API SSE events from body, translates
// them to normalized chunks, and sends them on ch. The channel is NOT
// closed by this function; the caller is responsible for closing it.
//
// SSE format expected:
//
//	event: content_block_delta\n
//	data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"..."}}\n
//	\n
//
// A message_stop event ends the sequence immediately: chunks after
// termination must never be yielded, even if further bytes are
// buffered. Malformed data lines are logged and skipped.
func parseEventStream(ctx context.Context, body io.Reader, ch chan<- provider.StreamChunk) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()

		// The JSON payload repeats the event type, so the "event:" lines
		// (and empty separators) carry no extra information.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		debug.Trace("providers", "anthropic event", "data", payload)

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed anthropic event",
				"error", err.Error(),
				"data", truncate(payload, 200),
			)
			continue
		}

		switch ev.Type {
		case eventContentBlockDelta:
			if ev.Delta.Type == deltaTypeText && ev.Delta.Text != "" {
				ch <- provider.ContentChunk(ev.Delta.Text)
			}
		case eventMessageStop:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ErrorChunk(api.NewUpstreamStreamError("anthropic stream read error: " + err.Error()))
	}
}

// truncate limits a string to maxLen characters for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
