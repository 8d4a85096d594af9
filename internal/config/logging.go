package config

import (
	"fmt"
	"log/slog"
)

// Supported log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// validLogLevels maps every supported level name to its slog level
var validLogLevels = map[string]slog.Level{
	LogLevelDebug: slog.LevelDebug,
	LogLevelInfo:  slog.LevelInfo,
	LogLevelWarn:  slog.LevelWarn,
	LogLevelError: slog.LevelError,
}

// SlogLevel returns the slog level of the configured log level
func (c *Config) SlogLevel() slog.Level {
	if level, ok := validLogLevels[c.LogLevel]; ok {
		return level
	}
	return slog.LevelInfo
}

func validateLogLevel(level string) error {
	if _, ok := validLogLevels[level]; !ok {
		return fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", level)
	}
	return nil
}

func validateLogFormat(format string) error {
	switch format {
	case LogFormatText, LogFormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", format)
	}
}

func validateWorkers(workers int) error {
	if workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", workers)
	}
	return nil
}
