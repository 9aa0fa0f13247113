package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/provider"
	"github.com/simstudio/copilot-gateway/pkg/storage"
	"github.com/simstudio/copilot-gateway/pkg/storage/memory"
	"github.com/simstudio/copilot-gateway/pkg/tools"
	"github.com/simstudio/copilot-gateway/pkg/workflow"
)

// fakeProvider replays a scripted chunk sequence.
type fakeProvider struct {
	chunks     []provider.StreamChunk
	connectErr error
	gotParams  *provider.ChatParams
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Chat(_ context.Context, params *provider.ChatParams) (<-chan provider.StreamChunk, error) {
	p.gotParams = params
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	ch := make(chan provider.StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type fakeResolver struct {
	prov provider.Provider
	err  error
}

func (r *fakeResolver) Resolve(context.Context, string, string) (provider.Provider, string, error) {
	if r.err != nil {
		return nil, "", r.err
	}
	return r.prov, "fake-model", nil
}

type fakeLoader struct {
	wf *workflow.Context
}

func (l *fakeLoader) Load(context.Context, string) *workflow.Context { return l.wf }

// eventCollector records emitted events and can simulate a client that
// disconnects after a fixed number of writes.
type eventCollector struct {
	events    []api.StreamEvent
	failAfter int // 0 = never fail
}

func (c *eventCollector) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	if c.failAfter > 0 && len(c.events) >= c.failAfter {
		return errors.New("client gone")
	}
	c.events = append(c.events, ev)
	return nil
}

func newTestEngine(t *testing.T, prov provider.Provider, opts ...func(*Engine)) *Engine {
	t.Helper()
	router := tools.NewRouter(nil)
	tools.RegisterBuiltins(router)

	e, err := New(&fakeResolver{prov: prov}, router, nil, nil, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func runChat(t *testing.T, e *Engine, req *api.ChatRequest) []api.StreamEvent {
	t.Helper()
	c := &eventCollector{}
	if err := e.StreamChat(context.Background(), req, c); err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	return c.events
}

func TestStreamChat_ContentOrderingAndSingleTerminal(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ContentChunk("Hello"),
		provider.ContentChunk(", "),
		provider.ContentChunk("world"),
	}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAsk})

	if len(events) != 4 {
		t.Fatalf("expected 3 content + done, got %d: %+v", len(events), events)
	}
	for i, want := range []string{"Hello", ", ", "world"} {
		if events[i].Type != api.EventContent || events[i].Data != want {
			t.Errorf("event %d: got %+v, want content %q", i, events[i], want)
		}
	}
	last := events[len(events)-1]
	if last.Type != api.EventDone {
		t.Errorf("last event is %s, want done", last.Type)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.IsTerminal() {
			t.Errorf("terminal event before the end: %+v", ev)
		}
	}
}

func TestStreamChat_DoneCarriesResponseID(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{provider.ContentChunk("x")}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAsk})

	done := events[len(events)-1]
	data, ok := done.Data.(api.DoneData)
	if !ok {
		t.Fatalf("done data has type %T", done.Data)
	}
	if !api.ValidateResponseID(data.ResponseID) {
		t.Errorf("invalid response id %q", data.ResponseID)
	}
}

func TestStreamChat_StreamErrorBecomesSingleErrorEvent(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ContentChunk("partial"),
		provider.ErrorChunk(api.NewUpstreamStreamError("connection reset")),
	}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAsk})

	if len(events) != 2 {
		t.Fatalf("expected content + error, got %+v", events)
	}
	last := events[1]
	if last.Type != api.EventError {
		t.Fatalf("last event is %s, want error", last.Type)
	}
	data := last.Data.(api.ErrorData)
	if data.Message != "connection reset" || data.Code != "upstream_stream" {
		t.Errorf("unexpected error data: %+v", data)
	}
	for _, ev := range events {
		if ev.Type == api.EventDone {
			t.Error("done must not follow an error event")
		}
	}
}

func TestStreamChat_PreStreamErrorReturnsWithoutEvents(t *testing.T) {
	prov := &fakeProvider{connectErr: api.NewUpstreamConnectError("refused")}
	e := newTestEngine(t, prov)

	c := &eventCollector{}
	err := e.StreamChat(context.Background(), &api.ChatRequest{Message: "hi", Mode: api.ModeAsk}, c)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamConnect {
		t.Fatalf("expected upstream_connect error, got %v", err)
	}
	if len(c.events) != 0 {
		t.Errorf("no events may be written before the stream starts: %+v", c.events)
	}
}

func TestStreamChat_ResolverErrorReturnsWithoutEvents(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{})
	e.resolver = &fakeResolver{err: api.NewProviderConfigError("no key")}

	c := &eventCollector{}
	err := e.StreamChat(context.Background(), &api.ChatRequest{Message: "hi"}, c)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeProviderConfig {
		t.Fatalf("expected provider_config error, got %v", err)
	}
	if len(c.events) != 0 {
		t.Errorf("unexpected events: %+v", c.events)
	}
}

func TestStreamChat_AgentModeExecutesToolsInOrder(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ContentChunk("Working on it."),
		provider.ToolCallChunk(api.ToolCall{ID: "tc-1", Name: "echo", Arguments: map[string]any{"text": "one"}}),
		provider.ToolCallChunk(api.ToolCall{ID: "tc-2", Name: "echo", Arguments: map[string]any{"text": "two"}}),
	}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAgent})

	// content, (tool_call, tool_result) x2, done
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d: %+v", len(events), events)
	}

	wantTypes := []api.StreamEventType{
		api.EventContent,
		api.EventToolCall, api.EventToolResult,
		api.EventToolCall, api.EventToolResult,
		api.EventDone,
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Fatalf("event %d is %s, want %s (%+v)", i, events[i].Type, want, events)
		}
	}

	first := events[1].Data.(api.ToolCallData)
	if first.ID != "tc-1" || first.Arguments != `{"text":"one"}` {
		t.Errorf("unexpected first tool call: %+v", first)
	}
	second := events[3].Data.(api.ToolCallData)
	if second.ID != "tc-2" {
		t.Errorf("tool calls out of order: %+v", second)
	}

	// Each result pairs with the call that precedes it.
	if r := events[2].Data.(api.ToolResultData); r.ToolCallID != "tc-1" || r.Error != "" {
		t.Errorf("unexpected first result: %+v", r)
	}
	if r := events[4].Data.(api.ToolResultData); r.ToolCallID != "tc-2" {
		t.Errorf("unexpected second result: %+v", r)
	}
}

func TestStreamChat_NonAgentModesDiscardToolCalls(t *testing.T) {
	for _, mode := range []api.Mode{api.ModeAsk, api.ModePlan} {
		prov := &fakeProvider{chunks: []provider.StreamChunk{
			provider.ToolCallChunk(api.ToolCall{ID: "tc-1", Name: "echo", Arguments: map[string]any{"text": "x"}}),
		}}
		e := newTestEngine(t, prov)

		events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: mode})

		if len(events) != 1 || events[0].Type != api.EventDone {
			t.Errorf("mode %s: expected only done, got %+v", mode, events)
		}
	}
}

func TestStreamChat_UnknownToolSurfacesInResult(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ToolCallChunk(api.ToolCall{ID: "tc-1", Name: "nonexistent"}),
	}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAgent})

	if len(events) != 3 {
		t.Fatalf("expected tool_call + tool_result + done, got %+v", events)
	}
	result := events[1].Data.(api.ToolResultData)
	if result.Error != "Tool not found: nonexistent" {
		t.Errorf("unexpected result error: %q", result.Error)
	}
	if events[2].Type != api.EventDone {
		t.Errorf("stream must still end with done, got %s", events[2].Type)
	}
}

func TestStreamChat_EmptyToolArgumentsRenderAsObject(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ToolCallChunk(api.ToolCall{ID: "tc-1", Name: "get_current_time"}),
	}}
	e := newTestEngine(t, prov)

	events := runChat(t, e, &api.ChatRequest{Message: "hi", Mode: api.ModeAgent})

	call := events[0].Data.(api.ToolCallData)
	if call.Arguments != "{}" {
		t.Errorf("expected empty object arguments, got %q", call.Arguments)
	}
}

func TestStreamChat_ClientDisconnectStopsSilently(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ContentChunk("a"),
		provider.ContentChunk("b"),
		provider.ContentChunk("c"),
	}}
	e := newTestEngine(t, prov)

	c := &eventCollector{failAfter: 1}
	if err := e.StreamChat(context.Background(), &api.ChatRequest{Message: "hi", Mode: api.ModeAsk}, c); err != nil {
		t.Fatalf("disconnect must not surface as an error: %v", err)
	}
	if len(c.events) != 1 {
		t.Errorf("expected exactly one delivered event, got %+v", c.events)
	}
}

func TestStreamChat_FramesSystemPromptHistoryAndMessage(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{provider.ContentChunk("ok")}}
	store := memory.New()
	ctx := context.Background()
	seedHistory := []struct{ role, content string }{
		{"user", "earlier question"},
		{"assistant", "earlier answer"},
	}
	for _, m := range seedHistory {
		err := store.SaveMessage(ctx, &storage.ChatMessage{
			UserID:     "u1",
			WorkflowID: "wf-1",
			Role:       m.role,
			Content:    m.content,
		})
		if err != nil {
			t.Fatalf("seeding history: %v", err)
		}
	}

	e := newTestEngine(t, prov, func(e *Engine) {
		e.store = store
		e.loader = &fakeLoader{wf: &workflow.Context{Name: "Deploy", Description: "Deploys"}}
	})

	runChat(t, e, &api.ChatRequest{Message: "current question", WorkflowID: "wf-1", UserID: "u1", Mode: api.ModeAsk})

	msgs := prov.gotParams.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != api.RoleSystem || msgs[1].Content != "earlier question" ||
		msgs[2].Content != "earlier answer" || msgs[3].Content != "current question" {
		t.Errorf("unexpected framing: %+v", msgs)
	}
}

func TestStreamChat_PersistsExchangeAfterDone(t *testing.T) {
	prov := &fakeProvider{chunks: []provider.StreamChunk{
		provider.ContentChunk("Hello "),
		provider.ContentChunk("there"),
	}}
	store := memory.New()
	e := newTestEngine(t, prov, func(e *Engine) { e.store = store })

	runChat(t, e, &api.ChatRequest{Message: "hi", WorkflowID: "wf-1", UserID: "u1", Mode: api.ModeAsk})

	// Persistence is fire-and-forget; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := store.History(context.Background(), "wf-1", 0)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(history) == 2 {
			if history[0].Role != "user" || history[0].Content != "hi" {
				t.Errorf("unexpected user message: %+v", history[0])
			}
			if history[1].Role != "assistant" || history[1].Content != "Hello there" {
				t.Errorf("unexpected assistant message: %+v", history[1])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("exchange never persisted, history: %+v", history)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
