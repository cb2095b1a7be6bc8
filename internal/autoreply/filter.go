package autoreply

import "strings"

// DefaultBlockedKeywords lists sender fragments that identify automated mail.
// Matching is a case-insensitive substring test against the whole From header.
var DefaultBlockedKeywords = []string{
	"noreply", "no-reply", "do-not-reply", "donotreply", "not-reply",
	"mailer-daemon", "mailer", "mailers",
	"updates", "notifications", "notify", "alerts",
	"promotions", "newsletter", "digest", "unsubscribe", "news",
	"info@", "support@", "admin@", "help@", "team@", "bot@", "api@",
	"system", "automated", "security", "bank",
	"googlemail", "github.com",
}

// DefaultBlockedDomains lists sender domains that never receive auto-replies.
var DefaultBlockedDomains = []string{}

// SenderFilter decides whether a sender may receive an automatic reply.
type SenderFilter struct {
	SelfAddress     string
	BlockedKeywords []string
	BlockedDomains  []string
}

// NewSenderFilter returns a filter with all inputs lower-cased and blank
// entries removed.
func NewSenderFilter(self string, keywords, domains []string) SenderFilter {
	return SenderFilter{
		SelfAddress:     strings.ToLower(strings.TrimSpace(self)),
		BlockedKeywords: normalizeList(keywords),
		BlockedDomains:  normalizeList(domains),
	}
}

// Eligible reports whether sender may be auto-replied to.
func (f SenderFilter) Eligible(sender string) bool {
	return IsEligible(sender, f.SelfAddress, f.BlockedKeywords, f.BlockedDomains)
}

// IsEligible reports whether sender may be auto-replied to. It rejects empty
// senders, senders containing selfAddress, and senders containing any blocked
// keyword or domain. All comparisons are case-insensitive substring tests.
// Blank selfAddress, keyword or domain entries never match.
func IsEligible(sender, selfAddress string, blockedKeywords, blockedDomains []string) bool {
	lower := strings.ToLower(strings.TrimSpace(sender))
	if lower == "" {
		return false
	}
	if containsFold(lower, selfAddress) {
		return false
	}
	for _, kw := range blockedKeywords {
		if containsFold(lower, kw) {
			return false
		}
	}
	for _, domain := range blockedDomains {
		if containsFold(lower, domain) {
			return false
		}
	}
	return true
}

// containsFold reports whether the already lower-cased s contains needle.
func containsFold(s, needle string) bool {
	needle = strings.ToLower(strings.TrimSpace(needle))
	if needle == "" {
		return false
	}
	return strings.Contains(s, needle)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
