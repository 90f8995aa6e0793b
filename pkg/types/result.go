package types

// StrategyName identifies a search strategy
type StrategyName string

const (
	StrategyExact   StrategyName = "exact"
	StrategyTrigram StrategyName = "trigram"
	StrategyVector  StrategyName = "vector"
	StrategyHybrid  StrategyName = "hybrid"
)

// SortKey names the field a result list is ordered by
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortCreatedAt SortKey = "created_at"
	SortName      SortKey = "name"
	SortUpdatedAt SortKey = "updated_at"
)

// SortOrder is the direction of a sort
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Threshold bounds shared by trigram and vector search
const (
	DefaultSimilarityThreshold = 0.3
	MinSimilarityThreshold     = 0.1
	MaxSimilarityThreshold     = 1.0
)

// SearchFilters is the per-query value object describing what to search for
type SearchFilters struct {
	QueryText           string       `json:"query"`
	Category            string       `json:"category,omitempty"` // label ("NPCs"), raw value ("npc") or "All"
	SortKey             SortKey      `json:"sort,omitempty"`
	SortOrder           SortOrder    `json:"order,omitempty"`
	Strategy            StrategyName `json:"strategy,omitempty"`
	SimilarityThreshold float64      `json:"similarity_threshold,omitempty"`
	VectorThreshold     float64      `json:"vector_threshold,omitempty"`
}

// Threshold returns the trigram similarity threshold clamped into range.
// Zero means "not set" and yields the default.
func (f SearchFilters) Threshold() float64 {
	return clampThreshold(f.SimilarityThreshold)
}

// VectorCutoff returns the vector similarity threshold clamped into range
func (f SearchFilters) VectorCutoff() float64 {
	return clampThreshold(f.VectorThreshold)
}

func clampThreshold(v float64) float64 {
	if v == 0 {
		return DefaultSimilarityThreshold
	}
	if v < MinSimilarityThreshold {
		return MinSimilarityThreshold
	}
	if v > MaxSimilarityThreshold {
		return MaxSimilarityThreshold
	}
	return v
}

// SearchResult is a detail item annotated with ranking information
type SearchResult struct {
	DetailItem

	RelevanceScore float64      `json:"relevance_score"`
	Strategy       StrategyName `json:"strategy"`
	Similarity     *float64     `json:"similarity,omitempty"` // Set by similarity-based strategies
}

// Clone returns a deep copy of the result
func (r SearchResult) Clone() SearchResult {
	out := r
	out.DetailItem = r.DetailItem.Clone()
	if r.Similarity != nil {
		v := *r.Similarity
		out.Similarity = &v
	}
	return out
}
