// Package util holds small environment helpers shared by the entry points.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean environment variable, accepting the usual
// spellings (true/1/yes/on and false/0/no/off, any case). Unset or
// unrecognizable values yield the fallback.
func ParseBoolEnv(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("unrecognized boolean environment value", "key", key, "value", val, "fallback", fallback)
		return fallback
	}
}

// GetenvDefault returns the environment variable value, or def when unset.
func GetenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
