package util

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var ErrControlChar = errors.New("text contains control characters")

// NormalizeInput collapses whitespace and truncates to max runes. Tabs and
// line breaks count as spaces; any other control character is rejected.
func NormalizeInput(raw string, max int) (string, error) {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r == utf8.RuneError || unicode.IsControl(r):
			return "", ErrControlChar
		default:
			b.WriteRune(r)
		}
	}
	return Truncate(strings.Join(strings.Fields(b.String()), " "), max), nil
}

// SanitizeText trims, drops control characters other than newlines and tabs,
// and truncates to max runes.
func SanitizeText(raw string, max int) string {
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == utf8.RuneError || unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
	return Truncate(strings.TrimSpace(clean), max)
}

// Truncate cuts s to at most max runes; max <= 0 leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	i, n := 0, 0
	for i = range s {
		if n == max {
			break
		}
		n++
	}
	return s[:i]
}

// VisibleRunes counts non-space runes.
func VisibleRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// HasLetter reports whether s contains any Unicode letter.
func HasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
