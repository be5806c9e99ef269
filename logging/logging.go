// Package logging centralizes zerolog setup so every package logs the same way.
package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey struct{}

var loggerKey = ctxKey{}

// Initialize sets up the global logger at info level.
func Initialize() {
	InitializeWithLevel(zerolog.InfoLevel)
}

// InitializeWithLevel sets up the global logger at the given level.
func InitializeWithLevel(level zerolog.Level) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	log.Logger = zerolog.New(consoleWriter).
		With().
		Timestamp().
		Caller().
		Logger()
}

// FromContext extracts a logger from ctx, falling back to the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return log.Logger
	}
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return log.Logger
}

// WithContext attaches a logger to ctx.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTask returns a context/logger pair tagged with a task name, used by
// the orchestrator to label every log line emitted during a task run.
func WithTask(ctx context.Context, taskName string) (context.Context, zerolog.Logger) {
	l := FromContext(ctx).With().Str("task", taskName).Logger()
	return WithContext(ctx, l), l
}

// WithItem tags a logger with the library item currently being processed.
func WithItem(ctx context.Context, itemID string) (context.Context, zerolog.Logger) {
	l := FromContext(ctx).With().Str("item_id", itemID).Logger()
	return WithContext(ctx, l), l
}
