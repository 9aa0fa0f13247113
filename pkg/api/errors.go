package api

import "fmt"

// ErrorType represents the category of a gateway error. The split
// matters for streaming: config and connect errors occur before the
// response stream starts and surface as HTTP error responses; stream
// errors occur after headers are committed and can only surface as an
// in-band error event.
type ErrorType string

const (
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeProviderConfig  ErrorType = "provider_config"
	ErrorTypeUpstreamConnect ErrorType = "upstream_connect"
	ErrorTypeUpstreamStream  ErrorType = "upstream_stream"
	ErrorTypeServerError     ErrorType = "server_error"
)

// APIError represents a structured gateway error with type, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError as the top-level JSON error body.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewUnauthorizedError creates an APIError for failed authentication.
func NewUnauthorizedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthorized, Message: message}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

// NewProviderConfigError creates an APIError for missing credentials or
// an unresolvable provider. Always raised before streaming begins.
func NewProviderConfigError(message string) *APIError {
	return &APIError{Type: ErrorTypeProviderConfig, Message: message}
}

// NewUpstreamConnectError creates an APIError for a failure to open the
// upstream provider stream. Raised before any chunk is yielded.
func NewUpstreamConnectError(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamConnect, Message: message}
}

// NewUpstreamStreamError creates an APIError for a failure after the
// upstream stream produced chunks. Surfaces as an in-stream error event.
func NewUpstreamStreamError(message string) *APIError {
	return &APIError{Type: ErrorTypeUpstreamStream, Message: message}
}

// NewServerError creates an APIError for internal gateway errors.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}
