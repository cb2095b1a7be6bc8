// Package logging provides structured logging utilities for the inboxreply application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Handler construction from --log-level / --log-format
//   - PII sanitization (sender anonymization)
//   - Consistent attribute naming across the codebase
//   - An adapter that routes robfig/cron logs through slog
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "autoreply.poll")
//	logger.Info("poll finished",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("sent auto-reply",
//	    logging.SenderHash(msg.Sender))
//
// # Security Considerations
//
//   - Sender addresses are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
