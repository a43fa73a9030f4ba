package logging

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// Setup builds the process logger: a text handler on w at level, wrapped
// with correlation ids and fanned out to extra handlers. The result also
// becomes slog's default.
func Setup(w io.Writer, level string, extra ...slog.Handler) *slog.Logger {
	handlers := append([]slog.Handler{
		slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}),
	}, extra...)

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = Tee(handlers...)
	}
	logger := slog.New(NewCorrelationHandler(h))
	slog.SetDefault(logger)
	return logger
}
