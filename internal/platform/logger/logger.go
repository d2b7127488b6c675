// Package logger builds the process-wide slog logger. Level and format come
// from the environment so deployments adjust logging without code changes.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to stderr. LOG_LEVEL selects debug|info|warn|
// error (default info); LOG_FORMAT=json switches to the JSON handler.
func New() *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	var h slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		h = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(h)
}
