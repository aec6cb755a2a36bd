package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestLevels(t *testing.T) {
	ctx := context.Background()

	if l := New(true); !l.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug logger must log debug")
	}

	if l := New(false); l.Enabled(ctx, slog.LevelDebug) || !l.Enabled(ctx, slog.LevelInfo) {
		t.Error("production logger must log from info")
	}
}
