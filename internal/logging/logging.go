// Package logging builds the docqa structured logger and carries
// request-scoped loggers through context, so a question can be followed from
// the HTTP request through intent detection, retrieval and the model call.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Attribute keys shared by every package that logs a question or an ingest.
const (
	KeyRequestID = "request_id"
	KeyIntent    = "intent"
	KeyOutcome   = "outcome"
	KeyMode      = "mode"
	KeyComponent = "component"
)

// Options selects the handler for NewWith. Zero values take the defaults.
type Options struct {
	// Level is debug, info, warn or error.
	Level string
	// Format is json or text.
	Format string
	// Writer receives the log lines. Defaults to os.Stderr.
	Writer io.Writer
}

type (
	loggerKey    struct{}
	requestIDKey struct{}
)

// New builds the process logger from LOG_LEVEL and LOG_FORMAT.
func New() *slog.Logger {
	return NewWith(Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// NewWith builds a logger from explicit options. Every record carries
// service=docqa.
func NewWith(o Options) *slog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(o.Level)}

	var handler slog.Handler
	if strings.EqualFold(o.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "docqa"))
}

// ParseLevel maps a level name to a [slog.Level]. Unknown names are Info.
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

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	return FromContextOr(ctx, slog.Default())
}

// FromContextOr returns the logger stored in ctx, or fallback when ctx has
// none. Services built with their own logger use it so request attributes
// reach their log lines when called from a handler.
func FromContextOr(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return fallback
}

// WithRequestID records id in ctx and tags the context logger (or base when
// ctx has none) with it.
func WithRequestID(ctx context.Context, base *slog.Logger, id string) context.Context {
	log := FromContextOr(ctx, base).With(slog.String(KeyRequestID, id))
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return WithLogger(ctx, log)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Component tags log with the emitting subsystem.
func Component(log *slog.Logger, name string) *slog.Logger {
	return log.With(slog.String(KeyComponent, name))
}
