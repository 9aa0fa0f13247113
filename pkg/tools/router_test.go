package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

func TestExecute_UnknownTool(t *testing.T) {
	r := NewRouter(nil)

	result := r.Execute(context.Background(), api.ToolCall{ID: "tc-1", Name: "missing"})

	if result.ToolCallID != "tc-1" {
		t.Errorf("result not paired with call: %+v", result)
	}
	if result.Error != "Tool not found: missing" {
		t.Errorf("unexpected error text: %q", result.Error)
	}
	if result.Result != nil {
		t.Errorf("result should be nil: %+v", result.Result)
	}
}

func TestExecute_ServerTool(t *testing.T) {
	r := NewRouter(nil)
	RegisterBuiltins(r)

	result := r.Execute(context.Background(), api.ToolCall{
		ID:        "tc-2",
		Name:      "echo",
		Arguments: map[string]any{"text": "hello"},
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	out, ok := result.Result.(map[string]any)
	if !ok || out["echo"] != "hello" {
		t.Errorf("unexpected result: %+v", result.Result)
	}
}

func TestExecute_ServerToolErrorIsCaptured(t *testing.T) {
	r := NewRouter(nil)
	r.Register(Definition{
		Name: "fails",
		Kind: KindServer,
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("boom")
		},
	})

	result := r.Execute(context.Background(), api.ToolCall{ID: "tc-3", Name: "fails"})
	if result.Error != "boom" {
		t.Errorf("expected handler error in result, got %q", result.Error)
	}
}

func TestExecute_PanickingHandlerIsCaptured(t *testing.T) {
	r := NewRouter(nil)
	r.Register(Definition{
		Name: "panics",
		Kind: KindServer,
		Handler: func(context.Context, map[string]any) (any, error) {
			panic("unexpected state")
		},
	})

	result := r.Execute(context.Background(), api.ToolCall{ID: "tc-4", Name: "panics"})
	if !strings.Contains(result.Error, "panicked") {
		t.Errorf("expected captured panic, got %q", result.Error)
	}
}

func TestExecute_ClientToolDelegatesToHostApp(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		gotKey = req.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"navigated": true}`))
	}))
	defer srv.Close()

	r := NewRouter(NewHostClient(srv.URL, "secret", time.Second))
	r.Register(Definition{Name: "navigate", Kind: KindClient})

	result := r.Execute(context.Background(), api.ToolCall{
		ID:        "tc-5",
		Name:      "navigate",
		Arguments: map[string]any{"url": "/dashboard"},
	})

	if result.Error != "" {
		t.Fatalf("unexpected error: %q", result.Error)
	}
	if gotPath != "/api/copilot/execute-tool" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotKey != "secret" {
		t.Errorf("api key not forwarded: %q", gotKey)
	}
	out, ok := result.Result.(map[string]any)
	if !ok || out["navigated"] != true {
		t.Errorf("unexpected result: %+v", result.Result)
	}
}

func TestExecute_ClientToolNon2xxBecomesResultError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "workflow is locked", http.StatusConflict)
	}))
	defer srv.Close()

	r := NewRouter(NewHostClient(srv.URL, "", time.Second))
	r.Register(Definition{Name: "edit", Kind: KindClient})

	result := r.Execute(context.Background(), api.ToolCall{ID: "tc-6", Name: "edit"})
	if !strings.Contains(result.Error, "workflow is locked") {
		t.Errorf("expected host app error body in result, got %q", result.Error)
	}
}

func TestExecute_ClientToolWithoutHostApp(t *testing.T) {
	r := NewRouter(nil)
	r.Register(Definition{Name: "navigate", Kind: KindClient})

	result := r.Execute(context.Background(), api.ToolCall{ID: "tc-7", Name: "navigate"})
	if result.Error == "" {
		t.Error("expected an error result when no host app is configured")
	}
}

func TestRegisterAndList(t *testing.T) {
	r := NewRouter(nil)
	RegisterBuiltins(r)

	if len(r.List()) != 2 {
		t.Fatalf("expected 2 builtins, got %d", len(r.List()))
	}
	if _, ok := r.Get("get_current_time"); !ok {
		t.Error("get_current_time not registered")
	}
}
