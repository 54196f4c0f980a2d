// Package logger provides the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger           = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	format           = "json"
	level            = new(slog.LevelVar)
	output io.Writer = os.Stdout
)

// Init configures level and format. Unknown values fall back to info and json.
func Init(lvl, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(parseLevel(lvl))
	format = strings.ToLower(fmtName)
	rebuild()
}

// SetOutput redirects log output. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

func rebuild() {
	opts := &slog.HandlerOptions{Level: level, AddSource: level.Level() == slog.LevelDebug}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(output, opts)
	} else {
		h = slog.NewJSONHandler(output, opts)
	}
	logger = slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the current logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}
