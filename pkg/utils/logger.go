// Package utils holds small cross-cutting helpers: the shared logger and
// masking for secrets that end up in logs or API responses.
package utils

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	loggerMu sync.Mutex
	logger   *slog.Logger
)

// InitLogger configures the shared slog logger. The level comes from
// SOLACE_LOG_LEVEL (debug, info, warn, error; default info). Output goes to
// stderr and, when the app dir is writable, to ~/.solace/logs/solace.log.
func InitLogger() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	level := parseLevel(os.Getenv("SOLACE_LOG_LEVEL"))

	var w io.Writer = os.Stderr
	if f := openLogFile(); f != nil {
		w = io.MultiWriter(os.Stderr, f)
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// GetLogger returns the shared logger. It is safe to call before InitLogger;
// a stderr-only logger is used until InitLogger runs.
func GetLogger() *slog.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func openLogFile() *os.File {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".solace", "logs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "solace.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil
	}
	return f
}

// MaskSensitiveString hides the middle of a secret, keeping a short prefix
// and suffix so keys stay recognizable without being usable.
func MaskSensitiveString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
