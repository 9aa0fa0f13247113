package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/debug"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

// parseLines reads newline-delimited JSON objects from body, translates
// them to normalized chunks, and sends them on ch. The channel is NOT
// closed by this function; the caller is responsible for closing it.
//
// A line that fails to parse as JSON is skipped: not an error, not a
// termination. A line carrying done:true ends the sequence immediately,
// discarding any further buffered bytes. bufio.Scanner reassembles
// lines split across network reads.
func parseLines(ctx context.Context, body io.Reader, ch chan<- provider.StreamChunk) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		debug.Trace("providers", "ollama line", "data", string(line))

		var msg chatLine
		if err := json.Unmarshal(line, &msg); err != nil {
			slog.Debug("skipping unparseable ollama line", "error", err.Error())
			continue
		}

		if msg.Message.Content != "" {
			ch <- provider.ContentChunk(msg.Message.Content)
		}
		if msg.Done {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- provider.ErrorChunk(api.NewUpstreamStreamError("ollama stream read error: " + err.Error()))
	}
}
