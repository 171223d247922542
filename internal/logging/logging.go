// Package logging carries zerolog loggers and trace IDs through context.Context.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Field names shared by every component logger.
const (
	FieldComponent = "component"
	FieldTraceID   = "trace_id"
)

type traceIDKey struct{}

// Config describes how a logger should be built.
type Config struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string
	// Format is "console" for human-readable output or "json".
	Format string
	// Output is "stderr" or "file".
	Output string
	// File is the log file path used when Output is "file".
	File string
}

// NewLogger builds a logger from cfg. An unparseable level falls back to info,
// and a log file that cannot be opened falls back to stderr.
func NewLogger(cfg Config) (zerolog.Logger, io.Closer) {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.Output == "file" && cfg.File != "" {
		f, openErr := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if openErr == nil {
			out = f
			closer = f
		}
	}

	if cfg.Format != "json" && out == os.Stderr {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), closer
}

// ComponentLogger returns a child logger tagged with the component name.
func ComponentLogger(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str(FieldComponent, component).Logger()
}

// FromContext returns the logger stored in ctx, or a disabled logger when
// none was attached.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// ContextWithTraceID stores traceID in ctx.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext returns the trace ID stored in ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetOrGenerateTraceID returns the trace ID already in ctx or a new random one.
func GetOrGenerateTraceID(ctx context.Context) string {
	if id := TraceIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
