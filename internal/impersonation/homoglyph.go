// Package impersonation detects brand look-alike and homoglyph domains.
package impersonation

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var confusables = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'3': 'e',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'|': 'l',
	'€': 'e',
}

// Normalize lower-cases s and maps confusable characters to the Latin letter they imitate
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// A Caser is stateful, so each call gets its own
	folded := cases.Lower(language.Und).String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if c, ok := confusables[r]; ok {
			r = c
		}
		b.WriteRune(r)
	}
	return b.String()
}
