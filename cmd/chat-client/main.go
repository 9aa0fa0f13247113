// Command chat-client is a terminal client for the gateway's streaming
// chat endpoint. It posts one message, decodes the SSE event stream,
// and prints content as it arrives.
//
// Usage:
//
//	chat-client -message "explain this workflow" \
//	    -url http://localhost:8080 -model claude-3-5-sonnet-20241022 \
//	    -workflow wf-1 -user dev -mode ask
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

func main() {
	var (
		url      = flag.String("url", "http://localhost:8080", "gateway base URL")
		message  = flag.String("message", "", "message to send (required)")
		workflow = flag.String("workflow", "wf-local", "workflow id")
		user     = flag.String("user", "dev", "user id")
		model    = flag.String("model", "", "model identifier (gateway default when empty)")
		mode     = flag.String("mode", "ask", "chat mode: ask, agent, plan")
		apiKey   = flag.String("api-key", os.Getenv("COPILOT_API_KEY"), "gateway API key")
	)
	flag.Parse()

	if *message == "" {
		fmt.Fprintln(os.Stderr, "error: -message is required")
		flag.Usage()
		os.Exit(2)
	}

	req := api.ChatRequest{
		Message:    *message,
		WorkflowID: *workflow,
		UserID:     *user,
		Model:      *model,
		Mode:       api.Mode(*mode),
	}

	if err := stream(*url, *apiKey, &req); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func stream(baseURL, apiKey string, req *api.ChatRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/api/chat-completion-streaming", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, raw)
	}

	return printEvents(resp.Body)
}

// printEvents reads SSE frames until the terminal event. Content goes
// to stdout unadorned; tool activity and stream metadata go to stderr
// so piped output stays clean.
func printEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		ev, err := api.DecodeSSE([]byte(line + "\n\n"))
		if err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}

		switch ev.Type {
		case api.EventContent:
			fmt.Print(ev.Data.(string))
		case api.EventToolCall:
			data := ev.Data.(api.ToolCallData)
			fmt.Fprintf(os.Stderr, "\n[tool call] %s(%s)\n", data.Name, data.Arguments)
		case api.EventToolResult:
			data := ev.Data.(api.ToolResultData)
			if data.Error != "" {
				fmt.Fprintf(os.Stderr, "[tool error] %s\n", data.Error)
				continue
			}
			result, _ := json.Marshal(data.Result)
			fmt.Fprintf(os.Stderr, "[tool result] %s\n", result)
		case api.EventDone:
			data := ev.Data.(api.DoneData)
			fmt.Println()
			fmt.Fprintf(os.Stderr, "[done] %s\n", data.ResponseID)
			return nil
		case api.EventError:
			data := ev.Data.(api.ErrorData)
			fmt.Println()
			return fmt.Errorf("stream error (%s): %s", data.Code, data.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("stream ended without a terminal event")
}
