// Package logger provides structured logging functionality for the summary bot.
// It uses Go's slog package for logging with configurable levels and formats.
package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(levelStr),
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a configuration level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RouteDiscordLogs sends discordgo's internal log output through log.
// discordgo logs through a package level function, so this affects every session.
func RouteDiscordLogs(log *slog.Logger) {
	dlog := log.With("component", "discordgo")
	discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		switch msgL {
		case discordgo.LogError:
			dlog.Error(msg, "caller", caller)
		case discordgo.LogWarning:
			dlog.Warn(msg, "caller", caller)
		case discordgo.LogInformational:
			dlog.Info(msg, "caller", caller)
		default:
			dlog.Debug(msg, "caller", caller)
		}
	}
}

// Truncate shortens s to maxLen bytes for log previews.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
