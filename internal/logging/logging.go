// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by InitLogging.
const (
	EnvLevel  = "MCPGUARD_LOG_LEVEL"
	EnvFormat = "MCPGUARD_LOG_FORMAT"
)

// InitLogging configures the default slog logger from MCPGUARD_LOG_LEVEL,
// MCPGUARD_LOG_FORMAT and an optional -log-level / --log-level flag (flag
// wins). It returns args with the flag stripped so subcommand flag sets
// don't choke on it.
func InitLogging(args []string) []string {
	levelStr := os.Getenv(EnvLevel)
	if levelStr == "" {
		levelStr = "info"
	}
	levelStr, remaining := stripLevelFlag(args, levelStr)
	slog.SetDefault(New(os.Stderr, ParseLevel(levelStr), os.Getenv(EnvFormat)))
	return remaining
}

func stripLevelFlag(args []string, levelStr string) (string, []string) {
	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// --log-level=value
		if strings.HasPrefix(arg, "--log-level=") {
			levelStr = strings.TrimPrefix(arg, "--log-level=")
			continue
		}
		if strings.HasPrefix(arg, "-log-level=") {
			levelStr = strings.TrimPrefix(arg, "-log-level=")
			continue
		}

		// -log-level value / --log-level value
		if arg == "-log-level" || arg == "--log-level" {
			if i+1 < len(args) {
				levelStr = args[i+1]
				i++ // skip the value
			}
			continue
		}

		remaining = append(remaining, arg)
	}
	return levelStr, remaining
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
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

// New returns a logger writing text, or JSON when format is "json".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
