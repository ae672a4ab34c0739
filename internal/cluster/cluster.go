// Package cluster folds near-duplicate entity strings into their most frequent spelling.
package cluster

import (
	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/fuzzy"
)

// DefaultThreshold is the minimum token sort ratio for two strings to be merged
const DefaultThreshold = fuzzy.DefaultCutoff

// Merge records one alternate folded into a primary
type Merge struct {
	Primary   string
	Alternate string
	Score     int
}

// Cluster merges near-duplicate entries of set in place and returns it.
//
// Entries are visited once each, most occurrences first. A visited entry
// absorbs the single best-scoring other entry that is still present,
// provided the score reaches threshold. An earlier primary can itself be
// absorbed by a later one. The absorbed key is removed from the set and
// recorded in the primary's Alternate list. The pass is greedy and order
// dependent.
func Cluster(localDebug bool, set *aggregate.Set, threshold int) (*aggregate.Set, []Merge) {
	defer debug.DebugTiming(localDebug, "cluster entities")()

	order := set.Sorted()
	keys := set.Keys()
	position := make(map[string]int, len(keys))
	for i, k := range keys {
		position[k] = i
	}

	index := fuzzy.NewIndex(keys)
	removed := make([]bool, len(keys))
	var merges []Merge

	for _, entry := range order {
		i := position[entry.Text]
		if removed[i] {
			continue
		}
		match, ok := index.Best(entry.Text, threshold, func(j int) bool {
			return j == i || removed[j]
		})
		if !ok {
			continue
		}

		primary, _ := set.Get(entry.Text)
		absorbed, _ := set.Delete(match.Choice)
		removed[match.Index] = true

		primary.Occurrences = append(primary.Occurrences, absorbed.Occurrences...)
		primary.Alternate = append(primary.Alternate, match.Choice)
		primary.Alternate = append(primary.Alternate, absorbed.Alternate...)

		merges = append(merges, Merge{Primary: entry.Text, Alternate: match.Choice, Score: match.Score})
		debug.DebugOutput(localDebug, "reconciled %s with %s (score %d)", entry.Text, match.Choice, match.Score)
	}

	return set, merges
}
