package logger

import (
	"context"
	"log/slog"
	"os"
)

// New returns the process-wide structured logger.
// Production and staging log JSON at info level; local/dev log text at debug level.
func New(appEnv string) *slog.Logger {
	level := slog.LevelInfo
	var h slog.Handler
	switch appEnv {
	case "local", "dev":
		level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(h)
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
