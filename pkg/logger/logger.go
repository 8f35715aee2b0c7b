package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the JSON logger used by the long-running binaries, tagged with the binary name.
func New(appEnv, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, appEnv, service)
}

func NewWithWriter(w io.Writer, appEnv, service string) *slog.Logger {
	return tag(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFor(appEnv)})), service)
}

// NewText is the human-readable variant for operator tooling on a terminal.
func NewText(w io.Writer, appEnv, service string) *slog.Logger {
	return tag(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFor(appEnv)})), service)
}

// levelFor is debug outside production-like environments. LOG_LEVEL (debug|info|warn|error) wins when set.
func levelFor(appEnv string) slog.Level {
	var lvl slog.Level
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" && lvl.UnmarshalText([]byte(v)) == nil {
		return lvl
	}
	switch strings.ToLower(appEnv) {
	case "local", "dev", "development":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func tag(l *slog.Logger, service string) *slog.Logger {
	if service != "" {
		return l.With("service", service)
	}
	return l
}

type ctxKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the request logger stored by Middleware, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
