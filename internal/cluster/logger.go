package cluster

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// newHCLogger creates an hclog.Logger for Raft that writes through logger.
// Raft is chatty, so it only logs warnings unless logger has debug enabled.
func newHCLogger(logger *slog.Logger) hclog.Logger {
	level := hclog.Warn
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		level = hclog.Debug
	}

	stdLogger := slog.NewLogLogger(logger.With("component", "raft").Handler(), slog.LevelInfo)

	return hclog.New(&hclog.LoggerOptions{
		Name:        "raft",
		Level:       level,
		Output:      stdLogger.Writer(),
		DisableTime: true,
	})
}
