package recommend

import (
	"sort"

	"github.com/yishak-cs/stylematch/internal/models"
)

// Rank scores every active item, sorts by descending score and keeps the
// first k. Equal scores keep catalog order. k <= 0 keeps every item.
func (s *Scorer) Rank(items []models.CatalogItem, profile *PreferenceProfile, k int) []ScoredItem {
	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		scored = append(scored, s.Score(item, profile))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// Engine bundles the aggregator and scorer behind one value. It is pure
// computation and safe for concurrent use.
type Engine struct {
	aggregator *Aggregator
	scorer     *Scorer
}

// NewEngine creates an engine over vocab with the given weights.
func NewEngine(vocab *Vocabulary, weights Weights) *Engine {
	return &Engine{
		aggregator: NewAggregator(vocab),
		scorer:     NewScorer(weights),
	}
}

// Profile aggregates answers into a preference profile.
func (e *Engine) Profile(answers []models.Answer, questions []models.Question) *PreferenceProfile {
	return e.aggregator.Aggregate(answers, questions)
}

// Rank ranks items against profile and keeps the top k.
func (e *Engine) Rank(items []models.CatalogItem, profile *PreferenceProfile, k int) []ScoredItem {
	return e.scorer.Rank(items, profile, k)
}
