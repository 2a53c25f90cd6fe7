package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, slog.LevelDebug)

	r := slog.NewRecord(time.Date(2024, 1, 15, 14, 30, 45, 123_000_000, time.UTC), slog.LevelInfo, "recovery initiated", 0)
	r.AddAttrs(slog.Uint64("round", 1))

	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	want := "2024-01-15 14:30:45.123 [INF] recovery initiated round=1\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestHandlerLevelThreshold(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, slog.LevelWarn)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be filtered at warn threshold")
	}

	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should pass warn threshold")
	}
}

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelInfo)).With("component", "api")

	log.Info("tx applied", "op", "deposit")

	line := buf.String()
	if !strings.Contains(line, "component=api") || !strings.Contains(line, "op=deposit") {
		t.Errorf("missing attrs in %q", line)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}

	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestHandlerGroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, slog.LevelInfo)).WithGroup("feed")

	log.Info("peer refused", "reason", "too many peers", slog.Group("peer", "id", "ab12"))

	line := buf.String()
	for _, want := range []string{`feed.reason="too many peers"`, "feed.peer.id=ab12"} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %q", want, line)
		}
	}

	if strings.Count(line, "\n") != 1 {
		t.Errorf("expected one line, got %q", line)
	}
}
