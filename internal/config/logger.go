package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger installs the process-wide structured logger.
func InitLogger(cfg *Config) {
	slog.SetDefault(NewLogger(os.Stdout, cfg.General.LogLevel, cfg.General.LogFormat))

	slog.Info("Logger initialized",
		"level", cfg.General.LogLevel,
		"format", cfg.General.LogFormat,
	)
}

// NewLogger builds a json or text slog logger at the named level.
func NewLogger(w io.Writer, levelName, format string) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
