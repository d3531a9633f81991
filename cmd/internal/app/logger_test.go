package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	ctx := context.Background()

	log := NewLogger("debug", "json")
	if !log.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("debug logger rejects debug records")
	}

	log = NewLogger("error", "pretty")
	if log.Enabled(ctx, slog.LevelWarn) {
		t.Fatal("error logger accepts warn records")
	}
}
