package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeKey lowercases s and drops all whitespace so keyword
// matching is insensitive to case and formatting.
func NormalizeKey(s string) string {
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, "")
}

// ContainsAny reports whether the normalized form of s contains one of
// the keywords. keywords are expected to be lowercase already.
func ContainsAny(s string, keywords []string) bool {
	s = NormalizeKey(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// CollapseSpace drops non-printable runes, trims the ends and collapses
// runs of whitespace into a single space.
func CollapseSpace(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}
