// Package logger builds the structured slog logger and carries request-scoped
// fields through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	PDFIDKey        contextKey = "pdf_id"
	CollectionIDKey contextKey = "collection_id"
)

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a JSON logger writing to w at the given level. A nil writer
// means stderr; stdout carries command output.
func New(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With("service", "firstrecord")
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDefault returns l, or slog.Default when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// WithPDFID adds a PDF asset id to ctx for log correlation.
func WithPDFID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, PDFIDKey, id)
}

// WithCollectionID adds a collection run id to ctx for log correlation.
func WithCollectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CollectionIDKey, id)
}

// FromContext returns l annotated with whatever ids ctx carries.
func FromContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	l = OrDefault(l)
	var fields []any
	if v, ok := ctx.Value(PDFIDKey).(string); ok && v != "" {
		fields = append(fields, string(PDFIDKey), v)
	}
	if v, ok := ctx.Value(CollectionIDKey).(string); ok && v != "" {
		fields = append(fields, string(CollectionIDKey), v)
	}
	if len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}
