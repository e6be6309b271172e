package app

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the application logger from cfg. Every record names the
// pipeline file; NewApp adds the pipeline name once the file is loaded.
// Unknown levels fall back to info.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	level, ok := logLevels[cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level == slog.LevelDebug,
		ReplaceAttr: shortSource,
	}
	var handler slog.Handler = slog.NewTextHandler(outW, opts)
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(outW, opts)
	}
	logger := slog.New(handler).With("app", "dsipipe")
	if cfg.ConfigPath != "" {
		logger = logger.With("pipeline_file", filepath.Base(cfg.ConfigPath))
	}
	return logger
}

// shortSource renders source locations as file.go:line.
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
		a.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
	}
	return a
}
