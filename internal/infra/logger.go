package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const logDir = "logs"

// NewLogger builds the process logger: JSON records written to stdout
// and to a size-rotated file under logs/, named after the app.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Logging.Level)}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		// No log directory, no file sink.
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	name := cfg.App.Name
	if name == "" {
		name = "broker"
	}
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, name+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotated), opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component derives a child logger tagged with the owning component, so
// every record can be filtered by the part of the pipeline that wrote
// it. Extra args are appended as attributes.
func Component(log *slog.Logger, name string, args ...any) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(append([]any{slog.String("module", name)}, args...)...)
}
