package llm

import (
	"fmt"
	"strings"

	"github.com/teemow/inboxreply/internal/autoreply"
)

const replySystemPrompt = "You are a helpful email assistant that writes perfect replies."

const replyPromptTemplate = `Generate a thoughtful, personalized reply to this email. Be helpful, polite, and conversational.

From: %s
Subject: %s
Content: %s

Guidelines:
1. If the email asks specific questions, answer them naturally
2. If it's a general message, respond appropriately to the tone
3. Keep it professional but friendly
4. Use the following base message only as inspiration: %s
5. Never include placeholders like [Your Name] - use first person
6. Keep it concise (2-4 sentences max)
7. Reply with the email body only, without a subject line`

const commandSystemPrompt = `You are an auto-reply configuration assistant. Analyze the user's request and answer with a single JSON object and nothing else:
{
  "action": "enable|disable|add_rule|remove_rule|list_rules|toggle_smart",
  "senders": ["email1@x.com", "name2"],
  "message": "Custom reply text",
  "start_time": "HH:MM",
  "end_time": "HH:MM",
  "use_llm": true,
  "identifier": "2",
  "status": "on|off"
}

Field rules:
- "senders" is omitted or empty for a rule that applies to everyone.
- "identifier" is the rule number as listed in the current rules, starting at 1.
- "status" is only used with toggle_smart.
- Omit fields that the request does not mention.

Examples:
- "Turn on auto-reply" -> {"action": "enable"}
- "Set up auto-reply from 9am to 5pm with message 'I'm on vacation'" -> {"action": "add_rule", "start_time": "09:00", "end_time": "17:00", "message": "I'm on vacation"}
- "Add auto-reply for emails from john@example.com saying 'I'll be back Monday'" -> {"action": "add_rule", "senders": ["john@example.com"], "message": "I'll be back Monday"}
- "Remove the second auto-reply rule" -> {"action": "remove_rule", "identifier": "2"}
- "Show current auto-reply rules" -> {"action": "list_rules"}
- "Disable AI responses" -> {"action": "toggle_smart", "status": "off"}`

const draftSystemPrompt = `You are an email assistant that writes complete, well-formatted emails from short instructions. Answer with a single JSON object and nothing else:
{
  "recipient": "email address or contact name",
  "subject": "Subject",
  "body": "Complete email content with greeting and sign-off, written in first person",
  "send_at": "HH:MM if the user asked to send it later, otherwise empty"
}
Never use placeholders like [Your Name].`

func replyPrompt(sender, subject, body, hint string) string {
	if strings.TrimSpace(hint) == "" {
		hint = "I'll respond soon"
	}
	return fmt.Sprintf(replyPromptTemplate, sender, subject, body, hint)
}

func commandPrompt(text string, rules []autoreply.Rule) string {
	var b strings.Builder
	b.WriteString("Current rules:\n")
	b.WriteString(autoreply.FormatRules(rules))
	b.WriteString("\n\nRequest: ")
	b.WriteString(text)
	return b.String()
}

func draftPrompt(instruction string) string {
	return "Instruction: " + instruction
}
