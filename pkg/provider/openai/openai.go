// Package openai implements provider.Provider against the OpenAI Chat
// Completions API (and compatible backends). The upstream protocol is
// a sequence of partial delta objects over SSE; content deltas become
// content chunks and each tool_calls entry becomes one tool-call
// fragment, taken verbatim from that delta.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

const defaultBaseURL = "https://api.openai.com"

// Config holds settings for the OpenAI adapter.
type Config struct {
	APIKey     string
	BaseURL    string // default: https://api.openai.com
	Timeout    time.Duration
	MaxRetries int
}

// Adapter talks to the Chat Completions API.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ provider.Provider = (*Adapter)(nil)

// New creates an OpenAI adapter. The API key is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Adapter{cfg: cfg, client: &http.Client{}}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return "openai"
}

// Chat opens a streaming Chat Completions request and returns the
// normalized chunk channel.
func (a *Adapter) Chat(ctx context.Context, params *provider.ChatParams) (<-chan provider.StreamChunk, error) {
	body, err := json.Marshal(buildRequest(params))
	if err != nil {
		return nil, api.NewUpstreamConnectError("marshaling request: " + err.Error())
	}

	resp, err := provider.Connect(ctx, a.client, a.cfg.MaxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, ch)
	}()

	return ch, nil
}

// buildRequest translates ChatParams to the Chat Completions body.
// Tools are wrapped in the {"type":"function","function":{...}} shape.
func buildRequest(params *provider.ChatParams) *chatRequest {
	req := &chatRequest{
		Model:  params.Model,
		Stream: true,
	}
	for _, m := range params.Messages {
		req.Messages = append(req.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	for _, t := range params.Tools {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return req
}
