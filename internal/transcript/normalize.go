// Package transcript canonicalizes free text so that spoken or typed
// answers can be compared against the accepted-answer lists regardless of
// casing, accents, punctuation, or stray whitespace.
package transcript

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes combining diacritical marks after NFD decomposition,
// so "ananás" and "ananas" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns the canonical form of s: trimmed, lowercased,
// diacritics stripped, with anything other than letters, digits, spaces and
// hyphens removed and internal whitespace collapsed to single spaces.
// Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether raw matches any accepted answer after both sides
// are normalized.
func Matches(raw string, accepted []string) bool {
	got := Normalize(raw)
	if got == "" {
		return false
	}
	for _, want := range accepted {
		if got == Normalize(want) {
			return true
		}
	}
	return false
}
