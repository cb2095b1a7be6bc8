package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("audit output is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestSentMail_Complete(t *testing.T) {
	sm := NewSentMail(SentKindAutoReply, "jane@example.com", "Re: Lunch").
		WithAccount("work").
		WithThread("t-1").
		Complete("m-9", nil)

	if !sm.Success || sm.Status() != StatusSuccess {
		t.Errorf("expected success, got %+v", sm)
	}
	if sm.MessageID != "m-9" {
		t.Errorf("MessageID = %q", sm.MessageID)
	}

	failed := NewSentMail(SentKindScheduled, "jane@example.com", "x").Complete("", errors.New("quota"))
	if failed.Success || failed.Status() != StatusError || failed.Error != "quota" {
		t.Errorf("expected failure, got %+v", failed)
	}
}

func TestAuditLogger_Anonymizes(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogSentMail(NewSentMail(SentKindAutoReply, "Jane <jane@example.com>", "Secret plans").
		WithThread("t-1").
		Complete("m-1", nil))

	out := buf.String()
	if strings.Contains(out, "jane@example.com") || strings.Contains(out, "Secret plans") {
		t.Fatalf("audit record leaked PII: %s", out)
	}

	entry := decodeRecord(t, &buf)
	if entry["msg"] != "mail_sent" {
		t.Errorf("msg = %v, want mail_sent", entry["msg"])
	}
	if entry["recipient_domain"] != "example.com" {
		t.Errorf("recipient_domain = %v", entry["recipient_domain"])
	}
	if !strings.HasPrefix(entry["recipient"].(string), "user:") {
		t.Errorf("recipient = %v, want anonymized", entry["recipient"])
	}
	if entry["thread_id"] != "t-1" || entry["message_id"] != "m-1" {
		t.Errorf("missing ids: %v", entry)
	}
}

func TestAuditLogger_IncludePII(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: true, IncludePII: true})

	al.LogSentMail(NewSentMail(SentKindManual, "jane@example.com", "Hello").Complete("", errors.New("boom")))

	entry := decodeRecord(t, &buf)
	if entry["msg"] != "mail_send_failed" {
		t.Errorf("msg = %v, want mail_send_failed", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["recipient"] != "jane@example.com" || entry["subject"] != "Hello" {
		t.Errorf("expected full recipient and subject, got %v", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestAuditLogger_DisabledAndNil(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogSentMail(NewSentMail(SentKindManual, "a@b.c", "x").Complete("", nil))
	if buf.Len() != 0 {
		t.Errorf("disabled logger wrote %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogSentMail(NewSentMail(SentKindManual, "a@b.c", "x"))
}

func TestSentMail_WithSpanContext(t *testing.T) {
	installRecorder(t)

	ctx, span := StartSpan(context.Background(), "send")
	defer span.End()

	sm := NewSentMail(SentKindManual, "a@b.c", "x").WithSpanContext(ctx)
	if sm.TraceID == "" || sm.SpanID == "" {
		t.Errorf("expected trace context, got %+v", sm)
	}
}
