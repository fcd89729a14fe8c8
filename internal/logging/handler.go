// Package logging provides a custom slog handler that mirrors application
// logs into the audit trail. It forwards records at WARN level and above to
// the database-backed event log.
package logging

import (
	"context"
	"log/slog"

	"github.com/olegiv/eventlog-go/internal/logger"
	"github.com/olegiv/eventlog-go/internal/model"
)

// AuditHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level records to the audit trail.
type AuditHandler struct {
	inner slog.Handler
	audit *logger.Logger
	level slog.Level // Minimum level to forward to the audit trail (default: WARN)
	attrs []slog.Attr
}

// NewAuditHandler creates an AuditHandler that wraps the given handler and
// writes qualifying records through the given audit logger.
func NewAuditHandler(inner slog.Handler, audit *logger.Logger) *AuditHandler {
	return &AuditHandler{
		inner: inner,
		audit: audit,
		level: slog.LevelWarn,
	}
}

// NewAuditHandlerWithLevel creates an AuditHandler with a custom minimum level.
func NewAuditHandlerWithLevel(inner slog.Handler, audit *logger.Logger, level slog.Level) *AuditHandler {
	return &AuditHandler{
		inner: inner,
		audit: audit,
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeToAuditTrail(r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &AuditHandler{
		inner: h.inner.WithAttrs(attrs),
		audit: h.audit,
		level: h.level,
		attrs: merged,
	}
}

// WithGroup implements slog.Handler.
func (h *AuditHandler) WithGroup(name string) slog.Handler {
	return &AuditHandler{
		inner: h.inner.WithGroup(name),
		audit: h.audit,
		level: h.level,
		attrs: h.attrs,
	}
}

// writeToAuditTrail records one log record as an audit event. A background
// context keeps the event even if the request context was cancelled.
func (h *AuditHandler) writeToAuditTrail(r slog.Record) {
	kv := make(map[string]any, r.NumAttrs()+len(h.attrs)+1)
	for _, a := range h.attrs {
		kv[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		kv[a.Key] = a.Value.String()
		return true
	})
	kv[model.ContextKeyInitiator] = model.InitiatorSystem

	_, _ = h.audit.Log(context.Background(), slogLevelToEventLevel(r.Level), r.Message, kv)
}

// slogLevelToEventLevel converts a slog.Level to an event level.
func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.LevelError
	case level >= slog.LevelWarn:
		return model.LevelWarning
	case level >= slog.LevelInfo:
		return model.LevelInfo
	default:
		return model.LevelDebug
	}
}
