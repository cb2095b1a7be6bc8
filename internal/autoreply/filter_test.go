package autoreply

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEligible(t *testing.T) {
	self := "me@example.com"

	tests := []struct {
		name     string
		sender   string
		keywords []string
		domains  []string
		want     bool
	}{
		{"regular sender", "John <john@x.com>", nil, nil, true},
		{"empty sender", "", nil, nil, false},
		{"blank sender", "   ", nil, nil, false},
		{"self", "me@example.com", nil, nil, false},
		{"self with display name", "Me <ME@Example.com>", nil, nil, false},
		{"blocked keyword", "alerts@bank.com", []string{"alerts"}, nil, false},
		{"blocked keyword any case", "ALERTS@bank.com", []string{"Alerts"}, nil, false},
		{"keyword is substring not word", "newsletters@shop.io", []string{"newsletter"}, nil, false},
		{"blocked domain", "ceo@spam.biz", nil, []string{"spam.biz"}, false},
		{"blank entries ignored", "john@x.com", []string{"", " "}, []string{""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(tt.sender, self, tt.keywords, tt.domains))
		})
	}
}

func TestIsEligible_SelfSubstring(t *testing.T) {
	senders := []string{
		"me@example.com",
		"prefix-me@example.com",
		"Someone <me@example.com.au>",
		"\"me@example.com\" <relay@lists.io>",
	}
	for _, s := range senders {
		assert.False(t, IsEligible(s, "me@example.com", nil, nil), s)
	}
}

func TestIsEligible_EmptySelfBlocksNothing(t *testing.T) {
	assert.True(t, IsEligible("john@x.com", "", nil, nil))
}

func TestSenderFilter(t *testing.T) {
	f := NewSenderFilter(" Me@Example.com ", DefaultBlockedKeywords, []string{" Spam.BIZ "})

	assert.Equal(t, "me@example.com", f.SelfAddress)
	assert.Equal(t, []string{"spam.biz"}, f.BlockedDomains)

	assert.True(t, f.Eligible("John Smith <john@x.com>"))
	assert.False(t, f.Eligible("no-reply@service.com"))
	assert.False(t, f.Eligible("GitHub <notifications@github.com>"))
	assert.False(t, f.Eligible("offers@spam.biz"))
	assert.False(t, f.Eligible("me@example.com"))
}
