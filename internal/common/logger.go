package common

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger returns the JSON logger every service writes to stdout.
func NewLogger(service string) zerolog.Logger {
	return newLogger(os.Stdout, service)
}

// NewConsoleLogger renders the same events for a terminal.
func NewConsoleLogger(service string) zerolog.Logger {
	return newLogger(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}, service)
}

func newLogger(w io.Writer, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(w).With().Timestamp().Str("service", service).Logger()
}

// WithContext decorates logger with the trace and span ids found in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
