package app

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a text logger writing to w and, when a log file is
// configured, to a size-rotated file as well. The returned function closes
// the file.
func NewLogger(w io.Writer, level slog.Leveler, settings Settings) (*slog.Logger, func() error) {
	if settings.LogFile == "" {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), func() error { return nil }
	}

	file := &lumberjack.Logger{
		Filename:   settings.LogFile,
		MaxSize:    settings.LogMaxSize,
		MaxBackups: settings.LogMaxBackups,
		MaxAge:     settings.LogMaxAge,
		Compress:   true,
	}

	handler := slog.NewTextHandler(io.MultiWriter(w, file), &slog.HandlerOptions{Level: level})
	return slog.New(handler), file.Close
}
