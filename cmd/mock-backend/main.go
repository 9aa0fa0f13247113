// Command mock-backend runs a deterministic model backend for local
// development and conformance testing. It speaks all three upstream
// protocols the gateway's provider adapters consume:
//
//	POST /v1/messages             Anthropic Messages SSE
//	POST /v1/chat/completions     OpenAI Chat Completions SSE
//	POST /api/chat                Ollama NDJSON
//
// Responses are derived from the last user message, so tests get
// predictable output without upstream credentials.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/messages", handleAnthropic)
	mux.HandleFunc("POST /v1/chat/completions", handleOpenAI)
	mux.HandleFunc("POST /api/chat", handleOllama)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// backendRequest covers the fields shared by all three wire formats.
type backendRequest struct {
	Model    string `json:"model"`
	System   string `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Tools  []json.RawMessage `json:"tools"`
	Stream bool              `json:"stream"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*backendRequest, bool) {
	var req backendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

// replyTokens scripts the response. The token split exercises the
// adapters' chunk reassembly the way a real backend would.
func replyTokens(req *backendRequest) []string {
	prompt := lastUserMessage(req)
	low := strings.ToLower(prompt)

	switch {
	case strings.Contains(low, "count from 1 to 5"):
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	case strings.Contains(low, "error please"):
		return nil
	case prompt != "":
		return []string{"You said: ", prompt}
	default:
		return []string{"Hello", " from", " the", " mock", " backend", "."}
	}
}

func lastUserMessage(req *backendRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// --- Anthropic Messages SSE ---

func handleAnthropic(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	if r.Header.Get("X-API-Key") == "" {
		http.Error(w, `{"type":"error","error":{"type":"authentication_error","message":"missing x-api-key"}}`, http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sseHeaders(w)

	writeAnthropicEvent(w, "message_start", map[string]any{
		"type":    "message_start",
		"message": map[string]any{"id": "msg_mock", "role": "assistant", "model": req.Model},
	})
	writeAnthropicEvent(w, "content_block_start", map[string]any{
		"type":  "content_block_start",
		"index": 0,
	})
	flusher.Flush()

	for _, token := range replyTokens(req) {
		writeAnthropicEvent(w, "content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": token},
		})
		flusher.Flush()
	}

	writeAnthropicEvent(w, "content_block_stop", map[string]any{
		"type":  "content_block_stop",
		"index": 0,
	})
	writeAnthropicEvent(w, "message_stop", map[string]any{"type": "message_stop"})
	flusher.Flush()
}

func writeAnthropicEvent(w http.ResponseWriter, event string, payload map[string]any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// --- OpenAI Chat Completions SSE ---

func handleOpenAI(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sseHeaders(w)

	writeOpenAIChunk(w, map[string]any{"role": "assistant"}, nil)
	flusher.Flush()

	for _, token := range replyTokens(req) {
		writeOpenAIChunk(w, map[string]any{"content": token}, nil)
		flusher.Flush()
	}

	// A request advertising tools gets one scripted call so agent-mode
	// round trips can be exercised end to end.
	if len(req.Tools) > 0 {
		writeOpenAIChunk(w, map[string]any{
			"tool_calls": []any{
				map[string]any{
					"index": 0,
					"id":    "call_mock_1",
					"type":  "function",
					"function": map[string]any{
						"name":      "echo",
						"arguments": `{"text":"hello from the mock"}`,
					},
				},
			},
		}, nil)
		flusher.Flush()
	}

	stop := "stop"
	writeOpenAIChunk(w, map[string]any{}, &stop)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func writeOpenAIChunk(w http.ResponseWriter, delta map[string]any, finishReason *string) {
	chunk := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion.chunk",
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finishReason,
			},
		},
	}
	data, _ := json.Marshal(chunk)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// --- Ollama NDJSON ---

func handleOllama(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")

	for _, token := range replyTokens(req) {
		writeOllamaLine(w, req.Model, token, false)
		flusher.Flush()
	}
	writeOllamaLine(w, req.Model, "", true)
	flusher.Flush()
}

func writeOllamaLine(w http.ResponseWriter, model, content string, done bool) {
	line := map[string]any{
		"model":      model,
		"created_at": time.Now().UTC().Format(time.RFC3339),
		"message":    map[string]any{"role": "assistant", "content": content},
		"done":       done,
	}
	data, _ := json.Marshal(line)
	fmt.Fprintf(w, "%s\n", data)
}
