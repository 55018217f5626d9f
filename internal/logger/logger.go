// Package logger builds the process-wide slog logger with file rotation.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"sitepulse/internal/config"
)

// New creates a logger that writes to stdout and a size-rotated log file.
// In tests the file sink is skipped so suites never litter log directories.
func New(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.GetLogLevel())

	var sink io.Writer = os.Stdout
	if !cfg.IsTest() && cfg.GetLogDirectory() != "" {
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.GetLogDirectory(), cfg.GetAppName()+".log"),
			MaxSize:    cfg.GetLogMaxSizeMB(),
			MaxBackups: cfg.GetLogMaxBackups(),
			MaxAge:     cfg.GetLogMaxAgeDays(),
			Compress:   true,
		}
		sink = io.MultiWriter(os.Stdout, rotated)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(sink, opts))
	}
	return slog.New(slog.NewTextHandler(sink, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case string(config.LogLevelDebug):
		return slog.LevelDebug
	case string(config.LogLevelWarn):
		return slog.LevelWarn
	case string(config.LogLevelError):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
