// Package anthropic implements provider.Provider against the Anthropic
// Messages API. The upstream protocol is a typed SSE event stream; a
// content_block_delta carrying a text delta becomes a content chunk,
// and a message_stop event ends the sequence immediately even if
// further bytes are buffered.
package anthropic

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

const (
	apiVersion       = "2023-06-01"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultMaxTokens = 4096
)

// Config holds settings for the Anthropic adapter.
type Config struct {
	APIKey     string
	BaseURL    string        // default: https://api.anthropic.com
	Timeout    time.Duration // connection establishment only
	MaxRetries int
}

// Adapter talks to the Anthropic Messages API.
type Adapter struct {
	cfg    Config
	client *http.Client
}

var _ provider.Provider = (*Adapter)(nil)

// New creates an Anthropic adapter. The API key is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	// No client timeout: a stream can legitimately outlive any fixed
	// deadline. The request context controls lifetime.
	return &Adapter{cfg: cfg, client: &http.Client{}}, nil
}

// Name returns the provider identifier.
func (a *Adapter) Name() string {
	return "anthropic"
}

// Chat opens a streaming Messages API request and returns the
// normalized chunk channel.
func (a *Adapter) Chat(ctx context.Context, params *provider.ChatParams) (<-chan provider.StreamChunk, error) {
	body, err := json.Marshal(buildRequest(params))
	if err != nil {
		return nil, api.NewUpstreamConnectError("marshaling request: " + err.Error())
	}

	resp, err := provider.Connect(ctx, a.client, a.cfg.MaxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("X-API-Key", a.cfg.APIKey)
		req.Header.Set("Anthropic-Version", apiVersion)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseEventStream(ctx, resp.Body, ch)
	}()

	return ch, nil
}

// buildRequest translates ChatParams to the Messages API body. System
// messages are lifted into the top-level system field, which is where
// the Messages API expects them.
func buildRequest(params *provider.ChatParams) *messagesRequest {
	req := &messagesRequest{
		Model:     params.Model,
		MaxTokens: defaultMaxTokens,
		Stream:    true,
	}

	var system []string
	for _, m := range params.Messages {
		if m.Role == api.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	for _, t := range params.Tools {
		req.Tools = append(req.Tools, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	return req
}
