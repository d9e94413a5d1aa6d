package logging

import (
	"log/slog"
	"strings"
)

// DefaultLevel applies when log_level is unset or unrecognized.
const DefaultLevel = slog.LevelInfo

// ParseLevel maps the config log_level string ("debug", "info", "warn",
// "error", case-insensitive) to a slog.Level. ok is false for anything
// else, with DefaultLevel as the value.
func ParseLevel(s string) (level slog.Level, ok bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// ParseLevelOrDefault is ParseLevel without the ok flag.
func ParseLevelOrDefault(s string) slog.Level {
	level, _ := ParseLevel(s)
	return level
}
