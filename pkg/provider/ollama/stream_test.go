package ollama

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/provider"
)

func collectChunks(t *testing.T, ndjson string) []provider.StreamChunk {
	t.Helper()
	ch := make(chan provider.StreamChunk, 64)

	go func() {
		defer close(ch)
		parseLines(context.Background(), strings.NewReader(ndjson), ch)
	}()

	var chunks []provider.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}
	return chunks
}

func TestParseLines_ContentThenDone(t *testing.T) {
	data := `{"message":{"content":"Hello"},"done":false}
{"message":{"content":" world"},"done":false}
{"message":{"content":""},"done":true}
`
	chunks := collectChunks(t, data)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Text != "Hello" || chunks[1].Text != " world" {
		t.Errorf("unexpected content: %+v", chunks)
	}
}

func TestParseLines_SkipsMalformedLines(t *testing.T) {
	data := `{not json at all
{"message":{"content":"hi"}}
{"done":true}
`
	chunks := collectChunks(t, data)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != provider.ChunkContent || chunks[0].Text != "hi" {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}
}

func TestParseLines_DiscardsLinesAfterDone(t *testing.T) {
	data := `{"message":{"content":"first"}}
{"done":true}
{"message":{"content":"ghost"}}
`
	chunks := collectChunks(t, data)

	if len(chunks) != 1 || chunks[0].Text != "first" {
		t.Fatalf("expected only %q before done, got %+v", "first", chunks)
	}
}

func TestParseLines_SkipsEmptyLines(t *testing.T) {
	data := "\n\n{\"message\":{\"content\":\"a\"}}\n\n{\"done\":true}\n"
	chunks := collectChunks(t, data)

	if len(chunks) != 1 || chunks[0].Text != "a" {
		t.Fatalf("expected single %q chunk, got %+v", "a", chunks)
	}
}

func TestParseLines_ReadErrorBecomesErrorChunk(t *testing.T) {
	ch := make(chan provider.StreamChunk, 4)
	go func() {
		defer close(ch)
		parseLines(context.Background(), &failingReader{}, ch)
	}()

	var chunks []provider.StreamChunk
	for c := range ch {
		chunks = append(chunks, c)
	}

	if len(chunks) != 1 || chunks[0].Type != provider.ChunkError {
		t.Fatalf("expected single error chunk, got %+v", chunks)
	}
	apiErr, ok := chunks[0].Err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T", chunks[0].Err)
	}
	if apiErr.Type != api.ErrorTypeUpstreamStream {
		t.Errorf("expected upstream_stream error, got %q", apiErr.Type)
	}
}

func TestBuildRequest(t *testing.T) {
	req := buildRequest(&provider.ChatParams{
		Model: "llama3",
		Messages: []api.Message{
			{Role: api.RoleSystem, Content: "be brief"},
			{Role: api.RoleUser, Content: "hi"},
		},
		Tools: []api.ToolSpec{
			{Name: "echo", Description: "echoes"},
		},
	})

	if !req.Stream {
		t.Error("stream should be enabled")
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "echo" {
		t.Errorf("unexpected tools: %+v", req.Tools)
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}
