package gmail

import (
	"encoding/base64"
	"mime"
	"strings"

	"github.com/k3a/html2text"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxreply/internal/autoreply"
)

// NoSubject replaces a missing Subject header.
const NoSubject = "No Subject"

// HeaderValue extracts a header value from a Gmail message.
// Header names are matched case-insensitively.
func HeaderValue(m *gmail.Message, header string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, header) {
			return h.Value
		}
	}
	return ""
}

// ExtractBody returns the readable body of a message payload: the first
// text/plain part, else the top-level body, else the first text/html part
// converted to plain text.
func ExtractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	var plain, html string
	walkParts(payload, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		switch {
		case plain == "" && strings.HasPrefix(part.MimeType, "text/plain"):
			plain = decodeData(part.Body.Data)
		case html == "" && strings.HasPrefix(part.MimeType, "text/html"):
			html = decodeData(part.Body.Data)
		}
	})

	if plain != "" {
		return plain
	}
	if payload.Body != nil && payload.Body.Data != "" && !strings.HasPrefix(payload.MimeType, "text/html") {
		return decodeData(payload.Body.Data)
	}
	if html != "" {
		return strings.TrimSpace(html2text.HTML2Text(html))
	}
	return ""
}

// IsAutomated reports whether headers mark the message as machine-generated:
// auto-replies, bulk mail and mailing list traffic.
func IsAutomated(m *gmail.Message) bool {
	if v := strings.ToLower(strings.TrimSpace(HeaderValue(m, "Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	if v := strings.ToLower(HeaderValue(m, "X-Auto-Response-Suppress")); strings.Contains(v, "all") || strings.Contains(v, "oof") {
		return true
	}
	if HeaderValue(m, "List-Id") != "" || HeaderValue(m, "List-Unsubscribe") != "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(HeaderValue(m, "Precedence"))) {
	case "bulk", "list", "junk":
		return true
	}
	return false
}

// toMessage converts a full-format Gmail message for the auto-reply engine.
func toMessage(m *gmail.Message) *autoreply.Message {
	subject := strings.TrimSpace(HeaderValue(m, "Subject"))
	if subject == "" {
		subject = NoSubject
	}
	return &autoreply.Message{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		MessageID:  strings.TrimSpace(HeaderValue(m, "Message-ID")),
		References: strings.TrimSpace(HeaderValue(m, "References")),
		Sender:     HeaderValue(m, "From"),
		Subject:    subject,
		BodyText:   ExtractBody(m.Payload),
		Automated:  IsAutomated(m),
	}
}

// replyReferences appends the original's Message-ID to its References chain.
func replyReferences(original *autoreply.Message) string {
	return strings.TrimSpace(original.References + " " + original.MessageID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// decodeData decodes Gmail's base64url body data, padded or not.
func decodeData(data string) string {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding} {
		if decoded, err := enc.DecodeString(data); err == nil {
			return string(decoded)
		}
	}
	return ""
}

// EmailMessage represents an email to be sent
type EmailMessage struct {
	To      []string
	Cc      []string
	Bcc     []string
	Subject string
	Body    string
	IsHTML  bool

	// ThreadID, InReplyTo and References keep a reply in its conversation.
	// References defaults to InReplyTo.
	ThreadID   string
	InReplyTo  string
	References string

	// Kind labels the audit record (auto_reply, scheduled, manual).
	Kind string
}

// buildRaw renders msg as an RFC 2822 message, base64url-encoded for the
// Gmail API. A non-empty signature is appended to the body.
func buildRaw(msg *EmailMessage, signature string) string {
	var b strings.Builder

	writeHeader := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	writeHeader("To", strings.Join(msg.To, ", "))
	writeHeader("Cc", strings.Join(msg.Cc, ", "))
	writeHeader("Bcc", strings.Join(msg.Bcc, ", "))
	writeHeader("Subject", encodeRFC2047(msg.Subject))
	writeHeader("In-Reply-To", msg.InReplyTo)
	writeHeader("References", firstNonEmpty(msg.References, msg.InReplyTo))
	if msg.IsHTML {
		writeHeader("Content-Type", `text/html; charset="UTF-8"`)
	} else {
		writeHeader("Content-Type", `text/plain; charset="UTF-8"`)
	}
	writeHeader("MIME-Version", "1.0")
	b.WriteString("\r\n")

	b.WriteString(withSignature(msg.Body, signature, msg.IsHTML))

	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func withSignature(body, signature string, isHTML bool) string {
	if signature == "" {
		return body
	}
	if isHTML {
		return body + "<br><br>-- <br>" + signature
	}
	return body + "\n\n-- \n" + signature
}

// encodeRFC2047 encodes a header value according to RFC 2047 when it
// contains non-ASCII characters (like German umlauts).
func encodeRFC2047(s string) string {
	for _, r := range s {
		if r > 127 {
			return mime.BEncoding.Encode("UTF-8", s)
		}
	}
	return s
}
