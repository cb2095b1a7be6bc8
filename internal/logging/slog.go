package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation  = "operation"
	KeyAccount    = "account"
	KeyMessage    = "message_id"
	KeyThread     = "thread_id"
	KeyRule       = "rule"
	KeySenderHash = "sender_hash"
	KeyJob        = "job_id"
	KeyProvider   = "provider"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Status values for consistent logging.
// Note: These are intentionally duplicated from instrumentation package
// to avoid circular dependencies (instrumentation imports logging).
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// New returns a logger writing to w. level is one of debug, info, warn or
// error; format is "text" or "json". Unknown values fall back to info and text.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithAccount returns a logger with the account attribute set.
func WithAccount(logger *slog.Logger, account string) *slog.Logger {
	return logger.With(slog.String(KeyAccount, account))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Account returns a slog attribute for the account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, account)
}

// Message returns a slog attribute for a mail message ID.
func Message(id string) slog.Attr {
	return slog.String(KeyMessage, id)
}

// Thread returns a slog attribute for a conversation thread ID.
func Thread(id string) slog.Attr {
	return slog.String(KeyThread, id)
}

// RuleIndex returns a slog attribute for a rule, numbered from 1 as users see it.
func RuleIndex(index int) slog.Attr {
	return slog.Int(KeyRule, index+1)
}

// Job returns a slog attribute for a scheduled email ID.
func Job(id string) slog.Attr {
	return slog.String(KeyJob, id)
}

// Provider returns a slog attribute for the LLM provider name.
func Provider(name string) slog.Attr {
	return slog.String(KeyProvider, name)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeEmail returns a hashed representation of an email for logging purposes.
// The address is lower-cased first so the same mailbox always hashes the same.
func AnonymizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(email))
	return "user:" + hex.EncodeToString(hash[:8])
}

// SenderHash returns a slog attribute with the anonymized sender. sender may be
// a bare address or a full From header; only the address part is hashed.
//
// Usage:
//
//	logger.Info("sent auto-reply", logging.SenderHash(msg.Sender))
func SenderHash(sender string) slog.Attr {
	return slog.String(KeySenderHash, AnonymizeEmail(AddressOf(sender)))
}

// AddressOf returns the address inside angle brackets of a From header such as
// "Jane <jane@example.com>", or the trimmed input when there are none.
func AddressOf(sender string) string {
	sender = strings.TrimSpace(sender)
	open := strings.LastIndex(sender, "<")
	end := strings.LastIndex(sender, ">")
	if open >= 0 && end > open {
		return strings.TrimSpace(sender[open+1 : end])
	}
	return sender
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractDomain extracts the domain part from an email address.
// This is useful for lower-cardinality logging where the full email would
// create too many unique values.
func ExtractDomain(email string) string {
	email = AddressOf(email)
	if email == "" {
		return ""
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

// Domain returns a slog attribute for the sender domain (lower cardinality than full email).
func Domain(email string) slog.Attr {
	return slog.String("sender_domain", ExtractDomain(email))
}
