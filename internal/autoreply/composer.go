package autoreply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/teemow/inboxreply/internal/logging"
)

// Compose returns the reply text for msg under rule. When smartReplies is on
// and the rule asks for it, the generator writes a contextual reply; any
// generator failure, including an empty answer or a nil generator, falls back
// to the rule's message. Compose never fails.
func Compose(ctx context.Context, rule Rule, sender, subject, body string, smartReplies bool, gen Generator) string {
	text, _ := compose(ctx, slog.Default(), rule, sender, subject, body, smartReplies, gen)
	return text
}

func compose(ctx context.Context, logger *slog.Logger, rule Rule, sender, subject, body string, smartReplies bool, gen Generator) (string, string) {
	if !smartReplies || !rule.UseLLM {
		return rule.Message, CompositionStatic
	}
	if gen == nil {
		logger.Warn("smart reply requested but no generator configured")
		return rule.Message, CompositionFallback
	}

	text, err := gen.GenerateReply(ctx, sender, subject, body, rule.Message)
	if err != nil {
		logger.Warn("reply generation failed, using rule message",
			logging.SenderHash(sender),
			logging.Err(err))
		return rule.Message, CompositionFallback
	}
	if strings.TrimSpace(text) == "" {
		logger.Warn("reply generation returned empty text, using rule message",
			logging.SenderHash(sender))
		return rule.Message, CompositionFallback
	}
	return text, CompositionGenerated
}

// ReplySubject prefixes subject with "Re: " unless it already carries one.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: No Subject"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
