package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/simstudio/copilot-gateway/pkg/api"
)

// Logging returns middleware that emits a structured log entry for each
// chat request with its request ID, user, workflow, mode, model, and
// duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatStreamer) ChatStreamer {
		return ChatStreamerFunc(func(ctx context.Context, req *api.ChatRequest, w EventWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.StreamChat(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("user_id", req.UserID),
				slog.String("workflow_id", req.WorkflowID),
				slog.String("mode", string(req.Mode)),
				slog.String("model", req.Model),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat request completed", attrs...)
			}

			return err
		})
	}
}
