// Package http serves the gateway API over HTTP, translating requests
// into engine calls and streaming events back as server-sent events.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simstudio/copilot-gateway/pkg/api"
	"github.com/simstudio/copilot-gateway/pkg/auth"
	"github.com/simstudio/copilot-gateway/pkg/observability"
	"github.com/simstudio/copilot-gateway/pkg/secrets"
	"github.com/simstudio/copilot-gateway/pkg/storage"
	"github.com/simstudio/copilot-gateway/pkg/transport"
)

// contextWindow is the assumed model context size, in tokens, used for
// the usage estimate. Roughly matches current frontier models.
const contextWindow = 128000

// Adapter routes gateway API requests. The store is optional; key,
// stats, and usage endpoints report an error when it is absent.
type Adapter struct {
	streamer transport.ChatStreamer
	store    storage.Store
	cipher   *secrets.Cipher
	limiter  auth.RateLimiter
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// ChatStreamer in the given order. store, cipher, and limiter may be
// nil; the corresponding features degrade gracefully.
func NewAdapter(streamer transport.ChatStreamer, store storage.Store, cipher *secrets.Cipher, limiter auth.RateLimiter, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		streamer = transport.Chain(middlewares...)(streamer)
	}

	a := &Adapter{
		streamer: streamer,
		store:    store,
		cipher:   cipher,
		limiter:  limiter,
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /api/chat-completion-streaming", a.handleChatStream)
	a.mux.HandleFunc("POST /api/validate-key/generate", a.handleGenerateKey)
	a.mux.HandleFunc("GET /api/validate-key/get-api-keys", a.handleListKeys)
	a.mux.HandleFunc("POST /api/validate-key/delete", a.handleDeleteKey)
	a.mux.HandleFunc("POST /api/stats", a.handleStats)
	a.mux.HandleFunc("POST /api/get-context-usage", a.handleContextUsage)
	a.mux.HandleFunc("POST /api/tools/mark-complete", a.handleMarkComplete)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.Handle("GET /metrics", promhttp.Handler())

	return a
}

// Handler returns the http.Handler for this adapter, wrapped with CORS
// and request ID propagation. Use this to integrate with an http.Server
// or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return corsMiddleware(httpRequestIDMiddleware(a.mux))
}

// corsMiddleware applies the permissive CORS policy the gateway's
// browser clients rely on and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A
// client-supplied ID is forwarded into the context; the transport-level
// RequestID middleware generates one otherwise, and the response header
// is set just before the first write.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChatStream handles POST /api/chat-completion-streaming.
func (a *Adapter) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if apiErr := req.Validate(); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	if !a.allowRequest(w, r, &req) {
		return
	}

	sw := newSSEEventWriter(w)
	if err := a.streamer.StreamChat(r.Context(), &req, sw); err != nil {
		if sw.hasStarted() {
			// Headers are committed; nothing more can be sent.
			slog.Error("stream failed after start", "error", err.Error())
			return
		}
		transport.WriteAPIError(w, err)
	}
}

// allowRequest enforces the per-user and per-address limits on the chat
// route and sets the X-RateLimit headers from the user's bucket.
// Returns false when the request was rejected.
func (a *Adapter) allowRequest(w http.ResponseWriter, r *http.Request, req *api.ChatRequest) bool {
	if a.limiter == nil {
		return true
	}

	userQuota, userErr := a.limiter.Allow(r.Context(), req.UserID, "user")
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(userQuota.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(userQuota.Reset.Unix(), 10))
	if userErr != nil {
		observability.RateLimitRejectedTotal.WithLabelValues("user").Inc()
		transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded, please slow down"))
		return false
	}

	if _, ipErr := a.limiter.Allow(r.Context(), auth.ClientIP(r), "ip"); ipErr != nil {
		observability.RateLimitRejectedTotal.WithLabelValues("ip").Inc()
		transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded, please slow down"))
		return false
	}

	return true
}

type generateKeyRequest struct {
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
	APIKey   string `json:"apiKey"`
}

// handleGenerateKey handles POST /api/validate-key/generate. The
// plaintext key is encrypted before it reaches the store and never
// appears in any response.
func (a *Adapter) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	if a.store == nil || a.cipher == nil {
		transport.WriteAPIError(w, api.NewServerError("key storage is not configured"))
		return
	}

	var req generateKeyRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("userId", "userId is required"))
		return
	}
	if req.Provider == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("provider", "provider is required"))
		return
	}
	if req.APIKey == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("apiKey", "apiKey is required"))
		return
	}

	encrypted, err := a.cipher.EncryptForStorage(req.APIKey)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("encrypting key: "+err.Error()))
		return
	}

	err = a.store.SaveKey(r.Context(), &storage.UserAPIKey{
		UserID:       req.UserID,
		Provider:     req.Provider,
		EncryptedKey: encrypted,
	})
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("storing key: "+err.Error()))
		return
	}

	slog.Info("stored user api key", "user_id", req.UserID, "provider", req.Provider)
	writeJSON(w, map[string]any{"success": true, "provider": req.Provider})
}

// handleListKeys handles GET /api/validate-key/get-api-keys. Only
// metadata leaves the store.
func (a *Adapter) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewServerError("key storage is not configured"))
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("userId", "userId query parameter is required"))
		return
	}

	keys, err := a.store.ListKeys(r.Context(), userID)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("listing keys: "+err.Error()))
		return
	}

	type keyInfo struct {
		ID        string `json:"id"`
		Provider  string `json:"provider"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]keyInfo, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyInfo{
			ID:        k.ID,
			Provider:  k.Provider,
			CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, map[string]any{"apiKeys": out})
}

type deleteKeyRequest struct {
	UserID   string `json:"userId"`
	Provider string `json:"provider"`
}

// handleDeleteKey handles POST /api/validate-key/delete.
func (a *Adapter) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewServerError("key storage is not configured"))
		return
	}

	var req deleteKeyRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Provider == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("userId", "userId and provider are required"))
		return
	}

	if err := a.store.DeleteKey(r.Context(), req.UserID, req.Provider); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("no key stored for provider "+req.Provider))
			return
		}
		transport.WriteAPIError(w, api.NewServerError("deleting key: "+err.Error()))
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

type statsRequest struct {
	UserID       string `json:"userId"`
	WorkflowID   string `json:"workflowId"`
	MessageID    string `json:"messageId"`
	DiffCreated  bool   `json:"diffCreated"`
	DiffAccepted bool   `json:"diffAccepted"`
}

// handleStats handles POST /api/stats.
func (a *Adapter) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewServerError("stats storage is not configured"))
		return
	}

	var req statsRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	err := a.store.RecordStat(r.Context(), &storage.UsageStat{
		UserID:       req.UserID,
		WorkflowID:   req.WorkflowID,
		MessageID:    req.MessageID,
		DiffCreated:  req.DiffCreated,
		DiffAccepted: req.DiffAccepted,
	})
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("recording stat: "+err.Error()))
		return
	}
	writeJSON(w, map[string]any{"success": true})
}

type contextUsageRequest struct {
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId"`
	ChatID     string `json:"chatId"`
	Model      string `json:"model"`
}

// handleContextUsage handles POST /api/get-context-usage. Token counts
// are a chars/4 estimate over the stored history; exact tokenization
// would need per-model vocabularies.
func (a *Adapter) handleContextUsage(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteAPIError(w, api.NewServerError("history storage is not configured"))
		return
	}

	var req contextUsageRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.WorkflowID == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("workflowId", "workflowId is required"))
		return
	}

	history, err := a.store.History(r.Context(), req.WorkflowID, 0)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError("loading history: "+err.Error()))
		return
	}

	var promptChars, completionChars int
	for _, m := range history {
		if m.Role == string(api.RoleAssistant) {
			completionChars += len(m.Content)
		} else {
			promptChars += len(m.Content)
		}
	}
	promptTokens := promptChars / 4
	completionTokens := completionChars / 4

	writeJSON(w, map[string]any{
		"usage": map[string]int{
			"promptTokens":     promptTokens,
			"completionTokens": completionTokens,
			"totalTokens":      promptTokens + completionTokens,
		},
		"contextSize": contextWindow,
	})
}

type markCompleteRequest struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
	Error      string `json:"error"`
}

// handleMarkComplete handles POST /api/tools/mark-complete, the
// acknowledgement a host application sends after finishing a
// client-delegated tool.
func (a *Adapter) handleMarkComplete(w http.ResponseWriter, r *http.Request) {
	var req markCompleteRequest
	if !a.decodeBody(w, r, &req) {
		return
	}
	if req.ToolCallID == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("toolCallId", "toolCallId is required"))
		return
	}

	slog.Info("tool execution acknowledged",
		"tool_call_id", req.ToolCallID,
		"has_result", req.Result != nil,
		"error", req.Error,
	)
	writeJSON(w, map[string]any{"success": true})
}

// healthCheckTimeout bounds the storage ping on /healthz.
const healthCheckTimeout = 2 * time.Second

// handleHealthz handles GET /healthz.
func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := a.store.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// decodeBody decodes a JSON request body, writing the error response
// on failure.
func (a *Adapter) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
