package logging

import (
	"log/slog"
	"os"
)

// Init installs the default logger. LOG_LEVEL overrides defaultLevel; the
// CLI defaults to errors only while the server defaults to info.
func Init(defaultLevel slog.Level) {
	level := defaultLevel

	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = ParseLevel(l, defaultLevel)
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}

// ParseLevel maps LOG_LEVEL names to a level, returning fallback when the
// name is unknown.
func ParseLevel(name string, fallback slog.Level) slog.Level {
	switch name {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}
