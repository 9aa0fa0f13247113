package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultExecuteTimeout = 30 * time.Second

// HostClient executes client tools on the host application over HTTP.
type HostClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ ClientExecutor = (*HostClient)(nil)

// NewHostClient creates a client for the host app's execute-tool
// endpoint. apiKey may be empty.
func NewHostClient(baseURL, apiKey string, timeout time.Duration) *HostClient {
	if timeout <= 0 {
		timeout = defaultExecuteTimeout
	}
	return &HostClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ExecuteTool POSTs {name, params} to the host app and returns the
// decoded JSON response. A non-2xx status is an error carrying the
// response body.
func (c *HostClient) ExecuteTool(ctx context.Context, name string, args map[string]any) (any, error) {
	body, err := json.Marshal(map[string]any{"name": name, "params": args})
	if err != nil {
		return nil, fmt.Errorf("marshaling tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/copilot/execute-tool", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling host app: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("host app tool execution failed: %s", strings.TrimSpace(string(snippet)))
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding tool response: %w", err)
	}
	return result, nil
}
