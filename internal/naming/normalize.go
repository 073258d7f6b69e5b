// Package naming contains the string normalization and poster filename
// classification rules used to match local titles against remote folders.
package naming

import (
	"regexp"
	"strings"
)

var (
	punctPattern      = regexp.MustCompile(`[-_:;&']`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	yearPattern       = regexp.MustCompile(`\(\d{4}\)`)
)

// Normalize canonicalizes a title or folder name into a matching key.
// It removes the punctuation set `- _ : ; & '`, optionally strips a
// parenthesized 4-digit year, collapses whitespace runs to a single space,
// lower-cases and trims. Equality of keys is the sole matching criterion
// between local titles and remote folder names.
//
// Year removal runs before the whitespace collapse so a year embedded in the
// middle of a title ("The Grand Tour (2016) Specials") never leaves a double
// space behind and the function stays idempotent.
func Normalize(name string, removeYear bool) string {
	s := punctPattern.ReplaceAllString(name, "")
	if removeYear {
		s = yearPattern.ReplaceAllString(s, "")
	}
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
