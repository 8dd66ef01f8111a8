package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

const logFileMode = 0644

// NewServerLogger returns a logger writing text to stderr and, when logFile
// is set, JSON to that file as well. The returned func closes the file.
func NewServerLogger(level, logFile string) (*slog.Logger, func() error) {
	lev := ParseLogLevel(level)
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lev})

	if logFile == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
	if err != nil {
		slog.Error("failed to open log file, using stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), func() error { return nil }
	}

	return NewServerLoggerWithWriters(os.Stderr, file, lev), file.Close
}

// NewServerLoggerWithWriters is NewServerLogger over arbitrary writers.
func NewServerLoggerWithWriters(text, json io.Writer, level slog.Level) *slog.Logger {
	textHandler := slog.NewTextHandler(text, &slog.HandlerOptions{Level: level})
	jsonHandler := slog.NewJSONHandler(json, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(textHandler, jsonHandler))
}
