// Package workflow loads workflow context from the host application and
// turns it into the system prompt that frames a chat request.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultLoadTimeout = 10 * time.Second

// Context describes the workflow a chat session is attached to.
type Context struct {
	WorkflowID  string
	Name        string
	Description string
	Context     string
	Tools       []string
}

// Loader fetches workflow context from the host application.
type Loader struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLoader creates a Loader for the host app's workflow endpoint.
// apiKey may be empty.
func NewLoader(baseURL, apiKey string, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	return &Loader{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type workflowResponse struct {
	Workflow *struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Context     string `json:"context,omitempty"`
		Tools       []struct {
			Name string `json:"name"`
		} `json:"tools"`
	} `json:"workflow"`
}

// Load fetches the context for a workflow. A missing workflow or any
// transport failure returns nil without error: the chat proceeds
// without a system prompt, matching the host app being optional.
func (l *Loader) Load(ctx context.Context, workflowID string) *Context {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/api/copilot/workflow/"+url.PathEscape(workflowID), nil)
	if err != nil {
		slog.Error("building workflow request", "workflow_id", workflowID, "error", err.Error())
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("X-API-Key", l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		slog.Error("loading workflow", "workflow_id", workflowID, "error", err.Error())
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("failed to load workflow", "workflow_id", workflowID, "status", resp.StatusCode)
		return nil
	}

	var decoded workflowResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		slog.Error("decoding workflow response", "workflow_id", workflowID, "error", err.Error())
		return nil
	}
	if decoded.Workflow == nil {
		slog.Warn("workflow not found", "workflow_id", workflowID)
		return nil
	}

	wf := &Context{
		WorkflowID:  decoded.Workflow.ID,
		Name:        decoded.Workflow.Name,
		Description: decoded.Workflow.Description,
		Context:     decoded.Workflow.Context,
	}
	for _, t := range decoded.Workflow.Tools {
		wf.Tools = append(wf.Tools, t.Name)
	}
	return wf
}

// BuildSystemPrompt renders a workflow context as the system prompt.
func BuildSystemPrompt(wf *Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Workflow: %s\n\n", wf.Name)
	b.WriteString(wf.Description)

	if wf.Context != "" {
		b.WriteString("\n\n## Context\n")
		b.WriteString(wf.Context)
	}

	if len(wf.Tools) > 0 {
		b.WriteString("\n\n## Available Tools\n")
		b.WriteString("You have access to the following tools: ")
		b.WriteString(strings.Join(wf.Tools, ", "))
	}

	return b.String()
}
