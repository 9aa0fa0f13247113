package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// HTTPStatusFromError maps an APIError type to the corresponding HTTP
// status code. Only pre-stream errors ever reach this mapping; once the
// SSE response has started, failures surface as in-band error events.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeUpstreamConnect, api.ErrorTypeUpstreamStream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes an error response, deriving the HTTP status code
// from the error type. Non-APIError values become 500 server errors.
func WriteAPIError(w http.ResponseWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
