package utils

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// maxEntityPasses bounds how many layers of entity encoding are decoded
// before markup is stripped.
const maxEntityPasses = 4

// SanitizeText strips markup and control characters from free text before
// it is stored, and collapses runs of whitespace (tabs, newlines) to one space.
// Entity-encoded markup is decoded first so it is stripped like literal tags.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	for i := 0; i < maxEntityPasses; i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	// the policy escapes the text it keeps; decode that back to plain text
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeEmail trims an address and drops characters that can never
// appear in one.
func SanitizeEmail(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '<' || r == '>' || r == '"' || r == ',' {
			return -1
		}
		return r
	}, s)
}
