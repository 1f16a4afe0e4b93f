package normalize

import (
	"strings"
	"unicode"
)

// ID returns an identifier with surrounding whitespace removed so ids coming from
// headers, query strings and JSON payloads compare equal.
func ID(id string) string {
	return strings.TrimSpace(id)
}

// Text returns message text suitable for storage: surrounding whitespace is trimmed
// and NUL/control characters other than newlines and tabs are dropped.
func Text(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
