package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teemow/inboxreply/internal/autoreply"
	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/logging"
)

// Defaults for contextual replies and command parsing.
const (
	DefaultMaxInputChars      = 2000
	DefaultReplyTemperature   = 0.7
	DefaultReplyMaxTokens     = 300
	DefaultCommandTemperature = 0.3
	defaultCommandMaxTokens   = 500
	defaultDraftMaxTokens     = 1000
)

// Options tunes an Assistant. Zero values select the defaults above.
type Options struct {
	MaxInputChars    int
	ReplyTemperature float64
	ReplyMaxTokens   int64

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Assistant turns emails and user instructions into completions. It
// implements autoreply.Generator and autoreply.CommandParser.
type Assistant struct {
	provider Provider
	opts     Options
	logger   *slog.Logger
}

var (
	_ autoreply.Generator     = (*Assistant)(nil)
	_ autoreply.CommandParser = (*Assistant)(nil)
)

// NewAssistant creates an Assistant backed by provider.
func NewAssistant(provider Provider, opts Options) *Assistant {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	if opts.ReplyTemperature <= 0 {
		opts.ReplyTemperature = DefaultReplyTemperature
	}
	if opts.ReplyMaxTokens <= 0 {
		opts.ReplyMaxTokens = DefaultReplyMaxTokens
	}
	if opts.Metrics == nil {
		opts.Metrics = &instrumentation.Metrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		provider: provider,
		opts:     opts,
		logger:   logger.With(logging.Provider(provider.Name())),
	}
}

// GenerateReply writes a short first-person reply to an email. hint is the
// rule's static message, used as inspiration only.
func (a *Assistant) GenerateReply(ctx context.Context, sender, subject, body, hint string) (string, error) {
	prompt := replyPrompt(sender, subject, truncateRunes(body, a.opts.MaxInputChars), hint)

	text, err := a.complete(ctx, instrumentation.LLMKindReply, Request{
		System:      replySystemPrompt,
		Prompt:      prompt,
		Temperature: a.opts.ReplyTemperature,
		MaxTokens:   a.opts.ReplyMaxTokens,
	})
	if err != nil {
		return "", err
	}

	reply := stripPlaceholders(text)
	if reply == "" {
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

// ParseCommand interprets a natural-language rule management request.
func (a *Assistant) ParseCommand(ctx context.Context, text string, rules []autoreply.Rule) (autoreply.Intent, error) {
	completion, err := a.complete(ctx, instrumentation.LLMKindCommand, Request{
		System:      commandSystemPrompt,
		Prompt:      commandPrompt(text, rules),
		Temperature: DefaultCommandTemperature,
		MaxTokens:   defaultCommandMaxTokens,
	})
	if err != nil {
		return autoreply.Intent{}, err
	}
	return decodeIntent(completion)
}

// DraftEmail composes an email from a free-text instruction such as
// "tell bob I'll be late tomorrow".
func (a *Assistant) DraftEmail(ctx context.Context, instruction string) (Draft, error) {
	completion, err := a.complete(ctx, instrumentation.LLMKindDraft, Request{
		System:      draftSystemPrompt,
		Prompt:      draftPrompt(instruction),
		Temperature: DefaultCommandTemperature,
		MaxTokens:   defaultDraftMaxTokens,
	})
	if err != nil {
		return Draft{}, err
	}
	return decodeDraft(completion, instruction)
}

// complete calls the provider inside a span and records the outcome.
func (a *Assistant) complete(ctx context.Context, kind string, req Request) (string, error) {
	ctx, span := instrumentation.StartLLMSpan(ctx, a.provider.Name(), a.provider.Model(), kind)
	start := time.Now()

	text, err := a.provider.Complete(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyCompletion
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		a.logger.Warn("completion failed",
			slog.String("kind", kind),
			logging.Err(err))
	}
	a.opts.Metrics.RecordLLMRequest(ctx, a.provider.Name(), kind, status, time.Since(start))
	instrumentation.EndSpan(span, err)

	return text, err
}
