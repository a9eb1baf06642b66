package cmd

import (
	"context"
	"log/slog"
	"testing"
)

func TestEnvOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback string
		expected string
	}{
		{
			name:     "set variable wins",
			value:    "/tmp/mail.db",
			fallback: "default.db",
			expected: "/tmp/mail.db",
		},
		{
			name:     "empty variable falls back",
			value:    "",
			fallback: "default.db",
			expected: "default.db",
		},
		{
			name:     "empty fallback stays empty",
			value:    "",
			fallback: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MAILDEX_TEST_VAR", tt.value)

			if got := envOrDefault("MAILDEX_TEST_VAR", tt.fallback); got != tt.expected {
				t.Errorf("envOrDefault = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()

	quiet := newLogger(false)
	if quiet.Enabled(ctx, slog.LevelDebug) {
		t.Error("default logger should not emit debug records")
	}
	if !quiet.Enabled(ctx, slog.LevelInfo) {
		t.Error("default logger should emit info records")
	}

	verbose := newLogger(true)
	if !verbose.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug logger should emit debug records")
	}
}
