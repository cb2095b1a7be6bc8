package logging

import (
	"log/slog"
)

// CronAdapter adapts an slog.Logger to the logger interface expected by
// github.com/robfig/cron/v3, so scheduler internals log through the same
// handler as the rest of the application.
type CronAdapter struct {
	logger *slog.Logger
}

// NewCronAdapter creates a new CronAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewCronAdapter(logger *slog.Logger) *CronAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CronAdapter{logger: logger}
}

// Info logs routine scheduler activity. cron reports every wake-up here, so it
// is logged at debug level.
// Arguments should be provided as alternating key-value pairs: key1, value1, key2, value2, ...
func (a *CronAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

// Error logs a scheduler failure with key-value pairs.
func (a *CronAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{Err(err)}, keysAndValues...)
	a.logger.Error(msg, args...)
}

// Logger returns the underlying slog.Logger for direct access when needed.
func (a *CronAdapter) Logger() *slog.Logger {
	return a.logger
}
