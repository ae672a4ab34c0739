// Package normalize prepares free text for fuzzy comparison.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldAccents decomposes s and drops combining marks, so "Müller" becomes "Muller"
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// Process replaces everything except letters, digits and underscores with
// spaces, lower-cases the result and trims it. Accents are folded first.
func Process(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, FoldAccents(s))
	return strings.TrimSpace(cases.Lower(language.Und).String(mapped))
}

// Tokens splits processed text on whitespace
func Tokens(s string) []string {
	return strings.Fields(Process(s))
}

// SortedTokens returns the processed tokens sorted and re-joined with single spaces
func SortedTokens(s string) string {
	tokens := Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// IsBlank reports whether s holds nothing but whitespace
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
