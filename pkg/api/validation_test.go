package api

import "testing"

func validRequest() ChatRequest {
	return ChatRequest{
		Message:    "hello",
		WorkflowID: "wf-1",
		UserID:     "user-1",
		Model:      "claude-3-5-sonnet-20241022",
		Mode:       ModeAsk,
	}
}

func TestValidate_OK(t *testing.T) {
	req := validRequest()
	if err := req.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ChatRequest)
		param  string
	}{
		{"missing message", func(r *ChatRequest) { r.Message = "" }, "message"},
		{"missing workflow", func(r *ChatRequest) { r.WorkflowID = "" }, "workflowId"},
		{"missing user", func(r *ChatRequest) { r.UserID = "" }, "userId"},
		{"missing model", func(r *ChatRequest) { r.Model = "" }, "model"},
		{"bad mode", func(r *ChatRequest) { r.Mode = "yolo" }, "mode"},
		{"unnamed tool", func(r *ChatRequest) { r.Tools = []ToolSpec{{}} }, "tools"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("type: got %q, want invalid_request", err.Type)
			}
			if err.Param != tt.param {
				t.Errorf("param: got %q, want %q", err.Param, tt.param)
			}
		})
	}
}
