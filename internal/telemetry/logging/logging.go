// Package logging wires zerolog the way the teacher's cmd/cryptorun/main.go
// does (RFC3339 timestamps, ConsoleWriter to stderr), generalized to
// also support a JSON sink for production, and attaches a per-run
// correlation id via google/uuid to every request-scoped logger.
package logging

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options controls global logger construction.
type Options struct {
	Level  string // "debug", "info", "warn", "error"
	Pretty bool   // true: ConsoleWriter like the teacher's CLI; false: JSON
}

// New builds the process-wide base logger per Options.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if opts.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return logger
}

type correlationIDKey struct{}

// WithCorrelationID attaches a fresh correlation id to both the context
// and a derived logger, for tracing one scheduler tick or backtest run
// across every log line it produces.
func WithCorrelationID(ctx context.Context, base zerolog.Logger) (context.Context, zerolog.Logger) {
	id := uuid.NewString()
	logger := base.With().Str("correlation_id", id).Logger()
	ctx = context.WithValue(ctx, correlationIDKey{}, id)
	return ctx, logger
}

// CorrelationID extracts the id set by WithCorrelationID, or "" if unset.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
