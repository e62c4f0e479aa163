package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWritesLogFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "gdmap.log")
	cleanup := Setup(Options{Level: "info", Format: "text", File: path})
	slog.Info("tile fetched", "z", 13)
	slog.Debug("suppressed")
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"tile fetched"`) || !strings.Contains(out, `"z":13`) {
		t.Errorf("expected JSON record in log file, got %q", out)
	}
	if strings.Contains(out, "suppressed") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("expected default logger for a bare context")
	}

	l := slog.Default().With("request_id", "abc")
	ctx := NewContext(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Error("expected the logger stored in the context")
	}
}
