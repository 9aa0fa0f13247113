package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StreamEventType classifies a client-visible stream event.
type StreamEventType string

const (
	EventContent    StreamEventType = "content"
	EventToolCall   StreamEventType = "tool_call"
	EventToolResult StreamEventType = "tool_result"
	EventDone       StreamEventType = "done"
	EventError      StreamEventType = "error"
)

// StreamEvent is the only representation ever sent to the client. The
// Data field is typed per variant: a string for content, ToolCallData,
// ToolResultData, DoneData, or ErrorData for the rest.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	Data any             `json:"data"`
}

// ToolCallData is the payload of a tool_call event. Arguments carries
// the JSON-serialized argument object as a string, matching what the
// model produced.
type ToolCallData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResultData is the payload of a tool_result event.
type ToolResultData struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DoneData is the payload of the done terminal event.
type DoneData struct {
	ResponseID string `json:"responseId"`
}

// ErrorData is the payload of the error terminal event.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewContentEvent wraps a text fragment in a content event.
func NewContentEvent(text string) StreamEvent {
	return StreamEvent{Type: EventContent, Data: text}
}

// NewToolCallEvent builds a tool_call event. Arguments must already be
// JSON-serialized.
func NewToolCallEvent(id, name, arguments string) StreamEvent {
	return StreamEvent{Type: EventToolCall, Data: ToolCallData{ID: id, Name: name, Arguments: arguments}}
}

// NewToolResultEvent builds a tool_result event from an execution outcome.
func NewToolResultEvent(result ToolResult) StreamEvent {
	return StreamEvent{Type: EventToolResult, Data: ToolResultData{
		ToolCallID: result.ToolCallID,
		Result:     result.Result,
		Error:      result.Error,
	}}
}

// NewDoneEvent builds the done terminal event.
func NewDoneEvent(responseID string) StreamEvent {
	return StreamEvent{Type: EventDone, Data: DoneData{ResponseID: responseID}}
}

// NewErrorEvent builds the error terminal event.
func NewErrorEvent(message, code string) StreamEvent {
	return StreamEvent{Type: EventError, Data: ErrorData{Message: message, Code: code}}
}

// IsTerminal reports whether the event ends a stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// EncodeSSE serializes an event in the gateway's fixed SSE framing:
//
//	data: {json}\n
//	\n
//
// Clients rely on this exact byte layout; no other framing is valid.
func EncodeSSE(e StreamEvent) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling stream event: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// DecodeSSE parses a single SSE frame produced by EncodeSSE back into a
// StreamEvent. The Data field is decoded into the variant's typed
// payload. Used by tests and by clients of the gateway.
func DecodeSSE(frame []byte) (StreamEvent, error) {
	trimmed := bytes.TrimSuffix(frame, []byte("\n\n"))
	payload, ok := bytes.CutPrefix(trimmed, []byte("data: "))
	if !ok {
		return StreamEvent{}, fmt.Errorf("frame missing %q prefix", "data: ")
	}

	var raw struct {
		Type StreamEventType `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshaling stream event: %w", err)
	}

	ev := StreamEvent{Type: raw.Type}
	switch raw.Type {
	case EventContent:
		var text string
		if err := json.Unmarshal(raw.Data, &text); err != nil {
			return StreamEvent{}, fmt.Errorf("unmarshaling content data: %w", err)
		}
		ev.Data = text
	case EventToolCall:
		var data ToolCallData
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return StreamEvent{}, fmt.Errorf("unmarshaling tool_call data: %w", err)
		}
		ev.Data = data
	case EventToolResult:
		var data ToolResultData
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return StreamEvent{}, fmt.Errorf("unmarshaling tool_result data: %w", err)
		}
		ev.Data = data
	case EventDone:
		var data DoneData
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return StreamEvent{}, fmt.Errorf("unmarshaling done data: %w", err)
		}
		ev.Data = data
	case EventError:
		var data ErrorData
		if err := json.Unmarshal(raw.Data, &data); err != nil {
			return StreamEvent{}, fmt.Errorf("unmarshaling error data: %w", err)
		}
		ev.Data = data
	default:
		return StreamEvent{}, fmt.Errorf("unknown event type %q", raw.Type)
	}
	return ev, nil
}
