// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/tom-assistant/tom/pkg/core"
)

// ConfigureSlog installs the global slog logger. Records logged with a
// context carry the active trace ids plus the turn identity (run, session,
// user), so one session's activity can be followed across components.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}
	logger := slog.New(&turnHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// turnHandler decorates records with identifiers carried by the request
// context. Attributes already present on the record win.
type turnHandler struct {
	next slog.Handler
}

func (h *turnHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *turnHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs := turnAttrs(ctx, record); len(attrs) > 0 {
		record.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, record)
}

func (h *turnHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &turnHandler{next: h.next.WithAttrs(attrs)}
}

func (h *turnHandler) WithGroup(name string) slog.Handler {
	return &turnHandler{next: h.next.WithGroup(name)}
}

func turnAttrs(ctx context.Context, record slog.Record) []slog.Attr {
	if ctx == nil {
		return nil
	}
	present := make(map[string]bool, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		present[attr.Key] = true
		return true
	})

	var attrs []slog.Attr
	add := func(key, value string) {
		if value != "" && !present[key] {
			attrs = append(attrs, slog.String(key, value))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}
	if id, ok := core.RunID(ctx); ok {
		add("run_id", id)
	}
	if id, ok := core.SessionID(ctx); ok {
		add("session_id", id)
	}
	if id, ok := core.UserID(ctx); ok {
		add("user_id", id)
	}
	return attrs
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
