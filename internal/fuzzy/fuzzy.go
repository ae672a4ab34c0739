// Package fuzzy scores string similarity on a 0-100 scale and picks best matches.
package fuzzy

import (
	"math"

	"github.com/emu-entities/internal/normalize"
)

// DefaultCutoff is the minimum score accepted as the same entity
const DefaultCutoff = 90

// Match is the best-scoring choice for a query
type Match struct {
	Choice string
	Index  int
	Score  int
}

// Ratio scores two strings by indel distance: 100 * (total length - distance) / total length,
// rounded half to even. Empty input scores 0 unless both strings are identical and non-empty.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	dist := indelDistance(ra, rb)
	return int(math.RoundToEven(100 * float64(total-dist) / float64(total)))
}

// TokenSortRatio compares a and b after processing and sorting their tokens,
// so word order and punctuation do not matter
func TokenSortRatio(a, b string) int {
	return Ratio(normalize.SortedTokens(a), normalize.SortedTokens(b))
}

// indelDistance is Levenshtein distance with substitutions costing 2
func indelDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 2
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// Index holds a list of choices with their token-sorted forms computed once
type Index struct {
	choices []string
	sorted  []string
}

// NewIndex prepares choices for repeated TokenSortRatio lookups
func NewIndex(choices []string) *Index {
	ix := &Index{
		choices: append([]string(nil), choices...),
		sorted:  make([]string, len(choices)),
	}
	for i, c := range choices {
		ix.sorted[i] = normalize.SortedTokens(c)
	}
	return ix
}

// Len returns the number of choices
func (ix *Index) Len() int {
	return len(ix.choices)
}

// Choice returns the choice at position i
func (ix *Index) Choice(i int) string {
	return ix.choices[i]
}

// Best returns the highest TokenSortRatio choice scoring at least cutoff.
// The earliest choice wins a tie. Choices for which skip returns true are ignored.
func (ix *Index) Best(query string, cutoff int, skip func(i int) bool) (Match, bool) {
	key := normalize.SortedTokens(query)
	best := Match{Index: -1, Score: -1}
	for i, candidate := range ix.sorted {
		if skip != nil && skip(i) {
			continue
		}
		score := Ratio(key, candidate)
		if score >= cutoff && score > best.Score {
			best = Match{Choice: ix.choices[i], Index: i, Score: score}
		}
	}
	return best, best.Index >= 0
}

// ExtractOne returns the best choice for query scoring at least cutoff
func ExtractOne(query string, choices []string, cutoff int) (Match, bool) {
	return NewIndex(choices).Best(query, cutoff, nil)
}
