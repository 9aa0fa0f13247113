// Package ollama implements provider.Provider against a local Ollama
// daemon. The upstream protocol is newline-delimited JSON, possibly
// split across network reads; each complete line is parsed
// independently, unparseable lines are skipped, and a line carrying
// done:true ends the sequence immediately.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

const defaultBaseURL = "http://localhost:11434"

// Config holds settings for the Ollama adapter. No API key is needed.
type Config struct {
	BaseURL    string // default: http://localhost:11434
	Timeout    time.Duration
	MaxRetries int
}

// Adapter talks to the Ollama chat API.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ provider.Provider = (*Adapter)(nil)

// New creates an Ollama adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Adapter{cfg: cfg, client: &http.Client{}}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return "ollama"
}

// Chat opens a streaming chat request and returns the normalized chunk
// channel.
func (a *Adapter) Chat(ctx context.Context, params *provider.ChatParams) (<-chan provider.StreamChunk, error) {
	body, err := json.Marshal(buildRequest(params))
	if err != nil {
		return nil, api.NewUpstreamConnectError("marshaling request: " + err.Error())
	}

	resp, err := provider.Connect(ctx, a.client, a.cfg.MaxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseLines(ctx, resp.Body, ch)
	}()

	return ch, nil
}

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
