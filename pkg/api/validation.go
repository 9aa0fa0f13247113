package api

import "strconv"

// Validate checks structural validity of a ChatRequest. The engine
// assumes requests passed to it are well-formed; this runs in the
// transport layer before the engine is invoked.
func (r *ChatRequest) Validate() *APIError {
	if r.Message == "" {
		return NewInvalidRequestError("message", "message is required")
	}
	if r.WorkflowID == "" {
		return NewInvalidRequestError("workflowId", "workflowId is required")
	}
	if r.UserID == "" {
		return NewInvalidRequestError("userId", "userId is required")
	}
	if r.Model == "" {
		return NewInvalidRequestError("model", "model is required")
	}
	switch r.Mode {
	case ModeAsk, ModeAgent, ModePlan:
	default:
		return NewInvalidRequestError("mode", `mode must be one of "ask", "agent", "plan"`)
	}
	for i, t := range r.Tools {
		if t.Name == "" {
			return NewInvalidRequestError("tools", "tool at index "+strconv.Itoa(i)+" is missing a name")
		}
	}
	return nil
}
