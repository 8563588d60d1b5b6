// Package sanitize strips personal data out of review text before it is
// stored or published anywhere.
package sanitize

import (
	"regexp"
	"strings"
)

// maxTextRunes bounds sanitized review text; longer texts are cut to
// truncateAt runes plus the marker.
const (
	maxTextRunes = 1000
	truncateAt   = 997
	marker       = "..."
)

// Replacement order matters: emails must go before handles so the @domain
// tail of an address is not half-eaten by the handle pattern.
var (
	emailPattern      = regexp.MustCompile(`\b[\w.-]+@[\w.-]+\.\w+\b`)
	phonePattern      = regexp.MustCompile(`\b(?:\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}\b`)
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	handlePattern     = regexp.MustCompile(`@[\p{L}\p{N}_.]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Text redacts emails, phone-like numbers, URLs and @handles, collapses
// whitespace, and truncates overlong texts. It is idempotent: applying it to
// its own output changes nothing, so re-sanitizing already-clean data is
// safe.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = emailPattern.ReplaceAllString(s, "[email]")
	s = phonePattern.ReplaceAllString(s, "[phone]")
	s = urlPattern.ReplaceAllString(s, "[link]")
	s = handlePattern.ReplaceAllString(s, "[user]")
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	if runes := []rune(s); len(runes) > maxTextRunes {
		s = string(runes[:truncateAt]) + marker
	}
	return s
}

// Clip truncates s to at most n runes without sanitizing. Adapters that pull
// arbitrary page text use it to bound input before redaction.
func Clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
