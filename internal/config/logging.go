package config

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger. Text goes to stderr; when
// logFile is non-empty a JSON copy is appended there as well. The
// returned cleanup closes the file and is safe to call in all cases.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: level}
	stderr := slog.NewTextHandler(os.Stderr, opts)

	noop := func() error { return nil }
	if logFile == "" {
		return slog.New(stderr), noop
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("failed to open log file, using stderr only", "file", logFile, "error", err)
		return slog.New(stderr), noop
	}

	logger := slog.New(slogmulti.Fanout(stderr, slog.NewJSONHandler(file, opts)))
	return logger, file.Close
}
