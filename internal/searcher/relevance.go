package searcher

import (
	"sort"
	"strings"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Exact match scoring
const (
	ScoreNameEqual    = 100.0
	ScoreNamePrefix   = 50.0
	ScoreNameContains = 30.0
	BonusDescription  = 10.0
	BonusAIGenerated  = 5.0
)

// BonusNameContains is added to trigram scores when the name contains the query
const BonusNameContains = 50.0

// Strategy weights applied by hybrid search
const (
	WeightExact   = 1.0
	WeightTrigram = 0.6
	WeightVector  = 0.4
	WeightHybrid  = 1.0
)

// ExactScore scores item against query. The name comparisons ignore case
// and are mutually exclusive. The description bonus applies when the
// description contains the query as typed.
func ExactScore(item types.DetailItem, query string) float64 {
	return nameScore(item, query) + descriptionBonus(item.DescriptionText(), query) + aiBonus(item)
}

// BasicScore is ExactScore with a case-insensitive description match, used
// to rank substring fallback results
func BasicScore(item types.DetailItem, query string) float64 {
	desc := strings.ToLower(item.DescriptionText())
	return nameScore(item, query) + descriptionBonus(desc, strings.ToLower(query)) + aiBonus(item)
}

func nameScore(item types.DetailItem, query string) float64 {
	name := strings.ToLower(item.Name)
	q := strings.ToLower(query)

	switch {
	case name == q:
		return ScoreNameEqual
	case strings.HasPrefix(name, q):
		return ScoreNamePrefix
	case strings.Contains(name, q):
		return ScoreNameContains
	}
	return 0
}

func descriptionBonus(description, query string) float64 {
	if strings.Contains(description, query) {
		return BonusDescription
	}
	return 0
}

func aiBonus(item types.DetailItem) float64 {
	if item.IsAIGenerated {
		return BonusAIGenerated
	}
	return 0
}

// Similarity is the symmetric word-overlap similarity of a and b: the number
// of word pairs where one word contains the other, divided by the larger
// word count. Words are whitespace separated and compared lowercased.
func Similarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	matches := 0
	for _, wa := range wordsA {
		for _, wb := range wordsB {
			if strings.Contains(wa, wb) || strings.Contains(wb, wa) {
				matches++
			}
		}
	}

	return float64(matches) / float64(max(len(wordsA), len(wordsB)))
}

// TrigramScore scores a similarity hit
func TrigramScore(item types.DetailItem, query string, similarity float64) float64 {
	score := similarity * 100
	if strings.Contains(strings.ToLower(item.Name), strings.ToLower(query)) {
		score += BonusNameContains
	}
	return score + aiBonus(item)
}

// SortByRelevance orders results by score descending, then newest first,
// then by id for a total order
func SortByRelevance(results []types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
