package transport

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

func TestChain_Order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next ChatStreamer) ChatStreamer {
			return ChatStreamerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
				calls = append(calls, name)
				return next.StreamChat(ctx, req, w)
			})
		}
	}

	handler := ChatStreamerFunc(func(context.Context, *api.ChatRequest, EventWriter) error {
		calls = append(calls, "handler")
		return nil
	})

	chained := Chain(mw("a"), mw("b"), mw("c"))(handler)
	if err := chained.StreamChat(context.Background(), &api.ChatRequest{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a", "b", "c", "handler"}
	if len(calls) != len(want) {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, calls)
		}
	}
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID()(ChatStreamerFunc(func(ctx context.Context, _ *api.ChatRequest, _ EventWriter) error {
		seen = RequestIDFromContext(ctx)
		return nil
	}))

	if err := handler.StreamChat(context.Background(), &api.ChatRequest{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 32 {
		t.Errorf("expected 32-char hex id, got %q", seen)
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	var seen string
	handler := RequestID()(ChatStreamerFunc(func(ctx context.Context, _ *api.ChatRequest, _ EventWriter) error {
		seen = RequestIDFromContext(ctx)
		return nil
	}))

	ctx := ContextWithRequestID(context.Background(), "fixed-id")
	if err := handler.StreamChat(ctx, &api.ChatRequest{}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "fixed-id" {
		t.Errorf("expected existing id preserved, got %q", seen)
	}
}

func TestRecovery_ConvertsPanicToServerError(t *testing.T) {
	handler := Recovery()(ChatStreamerFunc(func(context.Context, *api.ChatRequest, EventWriter) error {
		panic("boom")
	}))

	err := handler.StreamChat(context.Background(), &api.ChatRequest{}, nil)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeServerError || !strings.Contains(apiErr.Message, "boom") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
