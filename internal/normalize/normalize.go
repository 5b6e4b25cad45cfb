// Package normalize canonicalizes user-entered names and quote text.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// NameKey returns the comparison key for a person's name. Two names that differ
// only in case, Unicode composition, diacritics or whitespace share a key, so
// "José  Díaz" and "jose diaz" collide.
func NameKey(name string) string {
	s := norm.NFKD.String(name)
	s = strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) {
			return -1
		}
		return r
	}, s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// DisplayName trims a name and collapses internal whitespace while keeping
// its original casing.
func DisplayName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// Text normalizes a quote line: NFC composition, trimmed ends, and
// Windows line endings folded to "\n".
func Text(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}
