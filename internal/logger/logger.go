package logger

import (
	"io"
	"log/slog"
	"strings"
)

// New builds the process logger. format "json" selects slog's JSON handler,
// anything else the coloured PrettyHandler.
func New(w io.Writer, format string, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if isSensitiveKey(a.Key) {
				return slog.String(a.Key, "[redacted]")
			}
			return a
		},
	}

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(NewPrettyHandler(w, opts))
}

func ParseLevel(level string) slog.Level {
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

// isSensitiveKey reports attribute keys whose values must never reach logs.
func isSensitiveKey(key string) bool {
	switch strings.ToLower(key) {
	case "password", "refresh_token", "access_token", "token", "pairing_code", "authorization":
		return true
	}
	return false
}
