package autoreply

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidRule is returned when a rule is missing its message or carries an
// out-of-range time.
var ErrInvalidRule = errors.New("invalid rule")

// Rule governs one class of automatic replies: who it applies to, when it is
// active, and what it answers with.
type Rule struct {
	// Senders scopes the rule. Each entry is matched as a case-insensitive
	// substring of the From header. Empty means any sender.
	Senders []string `json:"senders" yaml:"senders"`

	// Message is the reply body, or the hint handed to the generator when
	// UseLLM is set.
	Message string `json:"message" yaml:"message"`

	StartTime ClockTime `json:"start_time" yaml:"start_time"`
	EndTime   ClockTime `json:"end_time" yaml:"end_time"`

	// UseLLM asks for a generated, contextual reply.
	UseLLM bool `json:"use_llm" yaml:"use_llm"`

	// Default mirrors IsDefault for readers of the persisted form.
	Default bool `json:"default" yaml:"default"`
}

// IsDefault reports whether the rule matches every sender.
func (r Rule) IsDefault() bool {
	return len(r.Senders) == 0
}

// Validate checks the rule is structurally usable.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRule)
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidRule, ErrInvalidTime)
	}
	return nil
}

// ActiveAt reports whether the rule's window contains now.
func (r Rule) ActiveAt(now ClockTime) bool {
	return IsActive(now, r.StartTime, r.EndTime)
}

// MatchesSender reports whether sender falls within the rule's scope.
func (r Rule) MatchesSender(sender string) bool {
	if r.IsDefault() {
		return true
	}
	lower := strings.ToLower(sender)
	for _, s := range r.Senders {
		if containsFold(lower, s) {
			return true
		}
	}
	return false
}

// normalized returns a copy safe to store: senders trimmed of blanks and the
// Default flag derived from them.
func (r Rule) normalized() Rule {
	senders := make([]string, 0, len(r.Senders))
	for _, s := range r.Senders {
		if s = strings.TrimSpace(s); s != "" {
			senders = append(senders, s)
		}
	}
	r.Senders = senders
	r.Default = len(senders) == 0
	return r
}

// RuleStore is an ordered, concurrency-safe list of rules. Order is match
// priority: the first active, matching rule wins.
type RuleStore struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRuleStore returns a store holding the valid rules from rules, in order.
func NewRuleStore(rules ...Rule) *RuleStore {
	s := &RuleStore{}
	for _, r := range rules {
		_, _ = s.Add(r)
	}
	return s
}

// Add appends rule and returns its index.
func (s *RuleStore) Add(rule Rule) (int, error) {
	if err := rule.Validate(); err != nil {
		return -1, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule.normalized())
	return len(s.rules) - 1, nil
}

// Remove deletes the rule at index. It returns false, leaving the store
// untouched, when index is out of range.
func (s *RuleStore) Remove(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rules) {
		return false
	}
	s.rules = append(s.rules[:index], s.rules[index+1:]...)
	return true
}

// Replace swaps the whole list, dropping invalid rules. It returns how many
// rules were dropped.
func (s *RuleStore) Replace(rules []Rule) int {
	kept := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Validate() != nil {
			continue
		}
		kept = append(kept, r.normalized())
	}
	s.mu.Lock()
	s.rules = kept
	s.mu.Unlock()
	return len(rules) - len(kept)
}

// List returns a copy of the rules in priority order.
func (s *RuleStore) List() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	for i, r := range s.rules {
		r.Senders = append([]string(nil), r.Senders...)
		out[i] = r
	}
	return out
}

// Len returns the number of rules.
func (s *RuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// Active returns the rules whose window contains now, in priority order.
func (s *RuleStore) Active(now ClockTime) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rule
	for _, r := range s.rules {
		if r.ActiveAt(now) {
			out = append(out, r)
		}
	}
	return out
}

// ActiveMatching returns the first rule, in stored order, that is active at
// now and whose sender scope covers sender.
func (s *RuleStore) ActiveMatching(now ClockTime, sender string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.ActiveAt(now) && r.MatchesSender(sender) {
			return r, true
		}
	}
	return Rule{}, false
}
