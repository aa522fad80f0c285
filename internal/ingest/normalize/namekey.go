package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NameKey produces the identity key used by tier-2 resolution and the
// per-identity locks: case-folded, diacritics-stripped, punctuation dropped,
// whitespace collapsed.
func NameKey(s string) string {
	folded, _, _ := transform.String(stripAccents, strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits a name key into its word set.
func Tokens(nameKey string) []string {
	if nameKey == "" {
		return nil
	}
	return strings.Fields(nameKey)
}
