package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestWithRunID(t *testing.T) {
	ctx := context.Background()

	if got := RunID(ctx); got != "" {
		t.Errorf("RunID on empty context = %q, want empty", got)
	}

	ctx = WithRunID(ctx, "run-123")
	if got := RunID(ctx); got != "run-123" {
		t.Errorf("RunID = %q, want run-123", got)
	}
}

func TestWithLogger(t *testing.T) {
	logger := New("debug", "json")
	ctx := WithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Error("FromContext did not return the stored logger")
	}
	if got := FromContext(context.Background()); got != slog.Default() {
		t.Error("FromContext without a logger should return the default")
	}
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if New(level, "text") == nil {
			t.Errorf("New(%q) returned nil", level)
		}
	}
	if New("info", "json") == nil {
		t.Error("New with json format returned nil")
	}
}

func TestLAttachesRunID(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-123")
	if L(ctx) == nil {
		t.Fatal("L returned nil")
	}
	// Without a run ID, L returns the context logger unchanged.
	logger := New("info", "text")
	ctx = WithLogger(context.Background(), logger)
	if L(ctx) != logger {
		t.Error("L without run ID should return the context logger as-is")
	}
}
