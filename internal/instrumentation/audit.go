package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxreply/internal/logging"
)

// Kinds of outgoing mail recorded by the audit trail.
const (
	SentKindAutoReply = "auto_reply"
	SentKindScheduled = "scheduled"
	SentKindManual    = "manual"
)

// SentMail captures one outgoing email for the audit trail.
//
// # Privacy Considerations
//
// Recipient and Subject are PII. Unless the AuditLogger is configured with
// IncludePII, the recipient is logged as an anonymized hash plus its domain
// and the subject is dropped.
type SentMail struct {
	Kind      string
	Account   string
	Recipient string
	Subject   string
	ThreadID  string
	MessageID string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewSentMail creates a new SentMail with timing started.
// Call Complete() once the send call returns.
func NewSentMail(kind, recipient, subject string) *SentMail {
	return &SentMail{
		Kind:      kind,
		Recipient: recipient,
		Subject:   subject,
		StartTime: time.Now(),
	}
}

// WithAccount sets the Google account name.
func (sm *SentMail) WithAccount(account string) *SentMail {
	sm.Account = account
	return sm
}

// WithThread sets the thread the mail belongs to.
func (sm *SentMail) WithThread(threadID string) *SentMail {
	sm.ThreadID = threadID
	return sm
}

// WithSpanContext extracts trace context from the current span.
func (sm *SentMail) WithSpanContext(ctx context.Context) *SentMail {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		sm.TraceID = span.SpanContext().TraceID().String()
		sm.SpanID = span.SpanContext().SpanID().String()
	}
	return sm
}

// Complete records the outcome. messageID is the id Gmail assigned, if any.
func (sm *SentMail) Complete(messageID string, err error) *SentMail {
	sm.Duration = time.Since(sm.StartTime)
	sm.MessageID = messageID
	sm.Success = err == nil
	if err != nil {
		sm.Error = err.Error()
	}
	return sm
}

// Status returns "success" or "error" based on the Success field.
func (sm *SentMail) Status() string {
	if sm.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns anonymized attributes suitable for general logs.
func (sm *SentMail) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", sm.Kind),
		slog.String("recipient", logging.AnonymizeEmail(logging.AddressOf(sm.Recipient))),
		slog.String("recipient_domain", ExtractUserDomain(sm.Recipient)),
		slog.Duration(logging.KeyDuration, sm.Duration),
		slog.Bool("success", sm.Success),
	}
	return append(attrs, sm.commonAttrs()...)
}

// LogAuditAttrs returns attributes including the full recipient and subject.
func (sm *SentMail) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", sm.Kind),
		slog.String("recipient", sm.Recipient),
		slog.String("subject", sm.Subject),
		slog.Duration(logging.KeyDuration, sm.Duration),
		slog.Bool("success", sm.Success),
	}
	if sm.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", sm.SpanID))
	}
	return append(attrs, sm.commonAttrs()...)
}

func (sm *SentMail) commonAttrs() []slog.Attr {
	var attrs []slog.Attr
	if sm.Account != "" && sm.Account != "default" {
		attrs = append(attrs, slog.String(logging.KeyAccount, sm.Account))
	}
	if sm.ThreadID != "" {
		attrs = append(attrs, slog.String(logging.KeyThread, sm.ThreadID))
	}
	if sm.MessageID != "" {
		attrs = append(attrs, slog.String(logging.KeyMessage, sm.MessageID))
	}
	if sm.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", sm.TraceID))
	}
	if sm.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, sm.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per outgoing email.
// A nil *AuditLogger is valid and logs nothing.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that anonymizes recipients.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogSentMail logs the record at info level, or warn level when the send failed.
func (al *AuditLogger) LogSentMail(sm *SentMail) {
	if al == nil || !al.enabled || sm == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = sm.LogAuditAttrs()
	} else {
		attrs = sm.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if sm.Success {
		al.logger.Info("mail_sent", args...)
	} else {
		al.logger.Warn("mail_send_failed", args...)
	}
}
