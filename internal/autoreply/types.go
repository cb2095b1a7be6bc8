package autoreply

import (
	"context"
	"time"
)

// MessageRef identifies an unread inbox message.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Message is the part of a fetched email the engine reads.
type Message struct {
	ID       string
	ThreadID string
	// MessageID and References are the RFC 5322 headers, used to thread a
	// reply. Either may be empty.
	MessageID  string
	References string
	// Sender is the raw From header, e.g. "Jane Doe <jane@example.com>".
	Sender   string
	Subject  string
	BodyText string
	// Automated is set by the mail adapter when headers mark the message as
	// machine-generated or list traffic (Auto-Submitted, List-Id, Precedence).
	Automated bool
}

// Mail is the mailbox the engine polls and replies through.
type Mail interface {
	// ListUnread returns unread messages in the inbox.
	ListUnread(ctx context.Context) ([]MessageRef, error)
	// Fetch returns the full message with the given ID.
	Fetch(ctx context.Context, id string) (*Message, error)
	// Send delivers a plain-text email.
	Send(ctx context.Context, to, subject, body string) error
	// MarkRead clears the unread flag of a message.
	MarkRead(ctx context.Context, id string) error
}

// ThreadReplier is implemented by a Mail that can answer inside the original
// conversation. The engine prefers it over Send.
type ThreadReplier interface {
	Reply(ctx context.Context, original *Message, to, subject, body string) error
}

// Generator writes a contextual reply to an email. hint is the rule's message,
// used as inspiration rather than verbatim.
type Generator interface {
	GenerateReply(ctx context.Context, sender, subject, body, hint string) (string, error)
}

// CommandParser turns a free-text instruction into an Intent. rules is the
// current rule list, given so the parser can resolve references like
// "the second rule".
type CommandParser interface {
	ParseCommand(ctx context.Context, text string, rules []Rule) (Intent, error)
}

// Settings is the persisted part of the engine configuration.
type Settings struct {
	Active       bool   `json:"active" yaml:"active"`
	SmartReplies bool   `json:"smart_replies" yaml:"smart_replies"`
	Rules        []Rule `json:"rules" yaml:"rules"`
}

// SettingsStore persists engine settings between runs.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

// Recorder receives engine measurements. The instrumentation package provides
// the OpenTelemetry implementation.
type Recorder interface {
	RecordPoll(ctx context.Context, status string, duration time.Duration)
	RecordReply(ctx context.Context, composition string)
	RecordSkip(ctx context.Context, reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordPoll(context.Context, string, time.Duration) {}
func (noopRecorder) RecordReply(context.Context, string)               {}
func (noopRecorder) RecordSkip(context.Context, string)                {}

// Poll status values reported to the Recorder.
const (
	PollInactive = "inactive"
	PollNoRules  = "no_active_rules"
	PollSuccess  = "success"
	PollError    = "error"
)

// Skip reasons reported to the Recorder.
const (
	SkipMissingSender  = "missing_sender"
	SkipAlreadyReplied = "already_replied"
	SkipBlockedSender  = "blocked_sender"
	SkipNoRule         = "no_matching_rule"
	SkipAutomated      = "automated"
)

// Reply compositions reported to the Recorder.
const (
	CompositionStatic    = "static"
	CompositionGenerated = "generated"
	CompositionFallback  = "fallback"
)
