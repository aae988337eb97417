// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// Init builds the JSON logger used across the tool and installs it as
// the slog default. Every record carries the claiming owner id so logs
// from a shared save directory can be attributed to a worker.
func Init(owner string) *slog.Logger {
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	handler = newRedactingHandler(handler)
	logger := slog.New(handler).With("owner", owner)
	slog.SetDefault(logger)
	return logger
}
