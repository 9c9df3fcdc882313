package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewLogger creates a structured logger with an explicit log level.
// In CGI mode w must be stderr: stdout carries the response.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)
	return log
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

// WithRequestID tags every record of one request with a fresh ULID.
func WithRequestID(log *slog.Logger) *slog.Logger {
	return log.With("request_id", ulid.Make().String())
}
