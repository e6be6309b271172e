package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/vk/dsipipe/internal/ctxlog"
)

// LogContext returns a context carrying a debug-level text logger that
// writes into the returned buffer. Set DSIPIPE_TEST_LOGS=true to mirror
// the records to stderr.
func LogContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	var w io.Writer = buf
	if os.Getenv("DSIPIPE_TEST_LOGS") == "true" {
		w = io.MultiWriter(buf, os.Stderr)
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// Context returns a context with a logger that discards everything.
func Context() context.Context {
	return ctxlog.Discard(context.Background())
}
