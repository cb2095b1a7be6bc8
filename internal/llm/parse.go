package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/teemow/inboxreply/internal/autoreply"
)

var (
	placeholderPattern = regexp.MustCompile(`(?i)\[(?:your|my|recipient|sender|name|company|insert|date|time|phone)[^\]\n]{0,40}\]`)
	spacesPattern      = regexp.MustCompile(`[ \t]{2,}`)
)

// stripPlaceholders removes template tokens such as "[Your Name]" that
// models sometimes leave in generated mail.
func stripPlaceholders(s string) string {
	s = placeholderPattern.ReplaceAllString(s, "")
	s = spacesPattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// truncateRunes returns at most n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// extractJSON returns the JSON object in a completion, tolerating markdown
// code fences and surrounding prose.
func extractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in completion")
	}
	return []byte(text[start : end+1]), nil
}

// flexString accepts a JSON string, number or boolean. Booleans map to
// "on"/"off".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*f = "on"
		} else {
			*f = "off"
		}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}

	return fmt.Errorf("unsupported value %s", data)
}

// flexStrings accepts a JSON array of strings or a single string.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = nil
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = compact(list)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("senders must be a string or a list of strings: %w", err)
	}
	*f = compact(strings.Split(s, ","))
	return nil
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type rawIntent struct {
	Action     string      `json:"action"`
	Senders    flexStrings `json:"senders"`
	Message    string      `json:"message"`
	StartTime  string      `json:"start_time"`
	EndTime    string      `json:"end_time"`
	UseLLM     *bool       `json:"use_llm"`
	Identifier flexString  `json:"identifier"`
	Status     flexString  `json:"status"`
}

// decodeIntent parses a command completion into an Intent.
func decodeIntent(text string) (autoreply.Intent, error) {
	data, err := extractJSON(text)
	if err != nil {
		return autoreply.Intent{}, err
	}

	var raw rawIntent
	if err := json.Unmarshal(data, &raw); err != nil {
		return autoreply.Intent{}, fmt.Errorf("invalid command JSON: %w", err)
	}

	action := strings.ToLower(strings.TrimSpace(raw.Action))
	if action == "" {
		return autoreply.Intent{}, errors.New("command JSON has no action")
	}

	return autoreply.Intent{
		Action:     action,
		Senders:    []string(raw.Senders),
		Message:    strings.TrimSpace(raw.Message),
		StartTime:  strings.TrimSpace(raw.StartTime),
		EndTime:    strings.TrimSpace(raw.EndTime),
		UseLLM:     raw.UseLLM,
		Identifier: string(raw.Identifier),
		Status:     strings.ToLower(string(raw.Status)),
	}, nil
}

// Draft is an email composed from a free-text instruction.
type Draft struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	// SendAt is "HH:MM" when the instruction asked for a later send.
	SendAt string `json:"send_at,omitempty"`
}

// draftSubjectLength bounds the subject derived from an instruction.
const draftSubjectLength = 50

func decodeDraft(text, instruction string) (Draft, error) {
	data, err := extractJSON(text)
	if err != nil {
		return Draft{}, err
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return Draft{}, fmt.Errorf("invalid draft JSON: %w", err)
	}

	d.Recipient = strings.TrimSpace(d.Recipient)
	d.Subject = strings.TrimSpace(d.Subject)
	d.SendAt = strings.TrimSpace(d.SendAt)
	d.Body = stripPlaceholders(d.Body)

	if d.Subject == "" {
		d.Subject = strings.TrimSpace(truncateRunes(instruction, draftSubjectLength))
	}
	if d.Body == "" {
		d.Body = "Hi,\n\n" + strings.TrimSpace(instruction) + "\n\nBest regards"
	}
	return d, nil
}
