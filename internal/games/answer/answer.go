// Package answer normalizes free-text player input so that answers compare
// equal regardless of case, accents and surrounding whitespace.
package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips diacritics, folds case and collapses inner whitespace.
// Casers are stateful, so each call builds its own.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(out)), " ")
}

func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
