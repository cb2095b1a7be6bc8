package autoreply

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command actions understood by Apply.
const (
	ActionEnable      = "enable"
	ActionDisable     = "disable"
	ActionAddRule     = "add_rule"
	ActionRemoveRule  = "remove_rule"
	ActionListRules   = "list_rules"
	ActionToggleSmart = "toggle_smart"
)

// Defaults for rules added by command without explicit values.
const (
	DefaultRuleMessage = "I'm currently unavailable. I'll respond soon."
	DefaultRuleStart   = "09:00"
	DefaultRuleEnd     = "17:00"
)

// ErrUnknownAction is returned by Apply for actions it does not handle.
var ErrUnknownAction = errors.New("unknown action")

// Intent is a structured rule-management command, usually produced by a
// CommandParser from free text.
type Intent struct {
	Action    string   `json:"action"`
	Senders   []string `json:"senders,omitempty"`
	Message   string   `json:"message,omitempty"`
	StartTime string   `json:"start_time,omitempty"`
	EndTime   string   `json:"end_time,omitempty"`
	UseLLM    *bool    `json:"use_llm,omitempty"`
	// Identifier is the rule number as shown by FormatRules, starting at 1.
	Identifier string `json:"identifier,omitempty"`
	// Status is "on" or "off" for toggle_smart.
	Status string `json:"status,omitempty"`
}

// HandleCommand parses text with parser and applies the result. The returned
// string is always suitable to show the user, including on failure.
func (e *Engine) HandleCommand(ctx context.Context, parser CommandParser, text string) (string, error) {
	intent, err := parser.ParseCommand(ctx, text, e.ListRules())
	if err != nil {
		return "Error processing command: " + err.Error(), err
	}
	return e.Apply(ctx, intent)
}

// Apply executes intent against the engine and returns a user-facing reply.
// Invalid input leaves the engine unchanged.
func (e *Engine) Apply(ctx context.Context, intent Intent) (string, error) {
	switch strings.ToLower(strings.TrimSpace(intent.Action)) {
	case ActionEnable:
		if err := e.ToggleActive(ctx, true); err != nil {
			return "Auto-reply enabled, but saving failed", err
		}
		return "Auto-reply enabled", nil

	case ActionDisable:
		if err := e.ToggleActive(ctx, false); err != nil {
			return "Auto-reply disabled, but saving failed", err
		}
		return "Auto-reply disabled", nil

	case ActionAddRule:
		rule, err := intent.Rule()
		if err != nil {
			return "Invalid time format", err
		}
		index, err := e.AddRule(ctx, rule)
		if err != nil {
			if index < 0 {
				return "Invalid rule: " + err.Error(), err
			}
			return fmt.Sprintf("Added rule %d, but saving failed", index+1), err
		}
		return fmt.Sprintf("Added rule %d: %s", index+1, DescribeRule(rule)), nil

	case ActionRemoveRule:
		n, err := strconv.Atoi(strings.TrimSpace(intent.Identifier))
		if err != nil {
			return "Invalid rule number", fmt.Errorf("%w: %q", ErrInvalidRuleNumber, intent.Identifier)
		}
		if err := e.RemoveRule(ctx, n-1); err != nil {
			if errors.Is(err, ErrInvalidRuleNumber) {
				return "Invalid rule number", err
			}
			return fmt.Sprintf("Removed rule %d, but saving failed", n), err
		}
		return fmt.Sprintf("Removed rule %d", n), nil

	case ActionListRules:
		return FormatRules(e.ListRules()), nil

	case ActionToggleSmart:
		on, ok := parseSwitch(intent.Status)
		if !ok {
			return "Smart reply status must be on or off", fmt.Errorf("invalid smart reply status %q", intent.Status)
		}
		if err := e.ToggleSmartReplies(ctx, on); err != nil {
			return "Smart replies " + enabledDisabled(on) + ", but saving failed", err
		}
		return "Smart replies " + enabledDisabled(on), nil

	default:
		return "Sorry, I didn't understand that command", fmt.Errorf("%w: %q", ErrUnknownAction, intent.Action)
	}
}

// Rule builds the rule described by an add_rule intent, filling defaults for
// missing fields. Times may be written as "HH:MM", "H:MMam" or "Ham".
func (in Intent) Rule() (Rule, error) {
	start, err := ParseFlexibleClock(orDefault(in.StartTime, DefaultRuleStart))
	if err != nil {
		return Rule{}, err
	}
	end, err := ParseFlexibleClock(orDefault(in.EndTime, DefaultRuleEnd))
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{
		Senders:   in.Senders,
		Message:   orDefault(in.Message, DefaultRuleMessage),
		StartTime: start,
		EndTime:   end,
	}
	if in.UseLLM != nil {
		rule.UseLLM = *in.UseLLM
	}
	return rule.normalized(), nil
}

// FormatRules renders rules as a numbered list, starting at 1.
func FormatRules(rules []Rule) string {
	if len(rules) == 0 {
		return "No auto-reply rules configured"
	}
	var b strings.Builder
	b.WriteString("Auto-reply rules:")
	for i, r := range rules {
		fmt.Fprintf(&b, "\n%d. %s", i+1, DescribeRule(r))
	}
	return b.String()
}

// DescribeRule renders a rule on one line.
func DescribeRule(r Rule) string {
	scope := "all senders"
	if !r.IsDefault() {
		scope = strings.Join(r.Senders, ", ")
	}
	desc := fmt.Sprintf("%s-%s, %s: %q", r.StartTime, r.EndTime, scope, r.Message)
	if r.UseLLM {
		desc += " (smart)"
	}
	return desc
}

func parseSwitch(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "enable", "enabled", "yes":
		return true, true
	case "off", "false", "disable", "disabled", "no":
		return false, true
	}
	return false, false
}

func enabledDisabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
