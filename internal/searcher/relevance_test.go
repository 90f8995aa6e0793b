package searcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/lorekeeper/pkg/types"
)

func TestExactScore(t *testing.T) {
	evil := types.DetailItem{
		ID:            "1",
		Name:          "Evil NPC",
		Description:   types.StringPtr("An evil character"),
		IsAIGenerated: true,
	}

	tests := []struct {
		name  string
		item  types.DetailItem
		query string
		want  float64
	}{
		{"full name match plus ai bonus", evil, "Evil NPC", 105},
		{"name prefix plus ai bonus", evil, "Evil", 55},
		{"description only plus ai bonus", evil, "character", 15},
		{"name equality ignores case", evil, "evil npc", 105},
		{"name contains", types.DetailItem{Name: "The Evil Tower"}, "evil", 30},
		{"description and name", types.DetailItem{Name: "Crypt", Description: types.StringPtr("a dark crypt")}, "crypt", 110},
		{"no match", types.DetailItem{Name: "Inn"}, "dragon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExactScore(tt.item, tt.query))
		})
	}
}

func TestBasicScore(t *testing.T) {
	evil := types.DetailItem{Name: "Evil NPC", Description: types.StringPtr("An evil character"), IsAIGenerated: true}
	assert.Equal(t, 65.0, BasicScore(evil, "Evil"))
	assert.Equal(t, 15.0, BasicScore(evil, "CHARACTER"))
	assert.Equal(t, ExactScore(evil, "character"), BasicScore(evil, "character"))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "dark forest", "Dark Forest", 1},
		{"one of two words", "dark", "Dark Forest", 0.5},
		{"substring words match", "gob", "goblin king", 0.5},
		{"no overlap", "dragon", "goblin king", 0},
		{"empty side", "dragon", "", 0},
		{"whitespace only", "   ", "goblin", 0},
		{"multiple pairs", "the king", "the goblin king", 2.0 / 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, Similarity(tt.a, tt.b), Similarity(tt.b, tt.a), 1e-9, "similarity is symmetric")
		})
	}
}

func TestTrigramScore(t *testing.T) {
	item := types.DetailItem{Name: "Goblin King", IsAIGenerated: true}
	assert.InDelta(t, 50+50+5, TrigramScore(item, "goblin", 0.5), 1e-9)
	assert.InDelta(t, 30, TrigramScore(types.DetailItem{Name: "Orc"}, "goblin", 0.3), 1e-9)
}

func TestSortByRelevance(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := func(id string, score float64, age time.Duration) types.SearchResult {
		return types.SearchResult{
			DetailItem:     types.DetailItem{ID: id, CreatedAt: base.Add(-age)},
			RelevanceScore: score,
		}
	}

	results := []types.SearchResult{
		result("old", 50, time.Hour),
		result("top", 90, 2*time.Hour),
		result("new", 50, 0),
		result("b", 10, 0),
		result("a", 10, 0),
	}
	SortByRelevance(results)

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"top", "new", "old", "a", "b"}, ids)
}
