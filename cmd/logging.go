package cmd

import (
	"log/slog"
	"os"
)

// newLogger builds the CLI logger. Logs go to stderr so the stdio MCP
// transport keeps stdout to itself. MAILDEX_LOG_FORMAT=json switches the
// handler to JSON output.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("MAILDEX_LOG_FORMAT") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// envOrDefault returns the environment value of key when set, else the
// fallback.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
