package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with recipient identifiers.

// ExtractUserDomain extracts the domain part from an email address or a
// "Name <addr>" header value.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")        // "example.com"
//	ExtractUserDomain("Jane <jane@Example.com>") // "example.com"
//	ExtractUserDomain("invalid")                 // "unknown"
//	ExtractUserDomain("")                        // "unknown"
func ExtractUserDomain(email string) string {
	if i := strings.LastIndex(email, "<"); i >= 0 {
		email = strings.TrimSuffix(email[i+1:], ">")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// Common operation types for Google API metrics.
// Status, OAuth, and Service constants are defined in config.go.
const (
	OperationList      = "list"
	OperationGet       = "get"
	OperationModify    = "modify"
	OperationSend      = "send"
	OperationSearch    = "search"
	OperationSignature = "signature"
)

// LLM request kinds.
const (
	LLMKindReply   = "reply"
	LLMKindCommand = "command"
	LLMKindDraft   = "draft"
)

// Scheduled send statuses.
const (
	ScheduledSent   = "sent"
	ScheduledRetry  = "retry"
	ScheduledFailed = "failed"
)
