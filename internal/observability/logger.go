package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/linkreach/linkreach/internal/config"
)

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	fileIDKey  ctxKey = "file_id"
)

// NewLogger builds the service logger. Records logged with a context pick up
// the request's trace_id and, once a session is known, its file_id.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(NewContextHandler(handler)).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// ContextHandler adds trace_id and file_id from the record's context.
type ContextHandler struct {
	next slog.Handler
}

func NewContextHandler(next slog.Handler) *ContextHandler {
	if inner, ok := next.(*ContextHandler); ok {
		return inner
	}
	return &ContextHandler{next: next}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if ctx != nil {
		if traceID := TraceIDFromContext(ctx); traceID != "" {
			record.AddAttrs(slog.String(string(traceIDKey), traceID))
		}
		if fileID := FileIDFromContext(ctx); fileID != "" {
			record.AddAttrs(slog.String(string(fileIDKey), fileID))
		}
	}
	return h.next.Handle(ctx, record)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name)}
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// ContextWithFileID scopes ctx to one upload session.
func ContextWithFileID(ctx context.Context, fileID string) context.Context {
	if fileID == "" {
		return ctx
	}
	return context.WithValue(ctx, fileIDKey, fileID)
}

func FileIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(fileIDKey).(string)
	if !ok {
		return ""
	}
	return value
}
