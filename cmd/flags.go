package cmd

import (
	"strings"
)

// parseCommaSeparatedList splits s on commas, trimming blanks. It returns nil
// when nothing is left.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// parseSenders flattens repeated --sender flags, each of which may itself be
// a comma-separated list.
func parseSenders(values []string) []string {
	var senders []string
	for _, v := range values {
		senders = append(senders, parseCommaSeparatedList(v)...)
	}
	return senders
}
