package cron

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// slogAdapter lets robfig/cron report through slog.
type slogAdapter struct {
	logger *slog.Logger
}

var _ cron.Logger = slogAdapter{}

func (a slogAdapter) Info(msg string, keysAndValues ...any) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	a.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
