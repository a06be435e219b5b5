// Package moderation decides whether a chat text may be relayed.
package moderation

import (
	"strings"
	"unicode/utf8"
)

const DefaultMaxLength = 2000

// Filter is immutable after construction and safe for concurrent use.
type Filter struct {
	blocklist []string
	maxLength int
}

// New lower-cases the blocklist once and drops blank entries, which would
// otherwise match every text.
func New(blocklist []string, maxLength int) *Filter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	words := make([]string, 0, len(blocklist))
	for _, w := range blocklist {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	return &Filter{blocklist: words, maxLength: maxLength}
}

// Allowed applies the rules in order: blank text, blocklisted substring
// (case-insensitive), then length in characters.
func (f *Filter) Allowed(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range f.blocklist {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return utf8.RuneCountInString(text) <= f.maxLength
}
