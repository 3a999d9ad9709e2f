// Package logging configures the process-wide slog logger: text output to
// stdout fanned out to a rotating file under the log directory (30 days of
// history kept).
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup installs the default slog logger. The returned closer flushes the
// rotating file sink.
func Setup(logDir string) (io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "bot.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 30,
		MaxAge:     30, // days
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, rotator), &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(handler))

	return rotator, nil
}
