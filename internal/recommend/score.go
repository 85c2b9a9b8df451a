package recommend

import (
	"fmt"
	"strings"

	"github.com/yishak-cs/stylematch/internal/models"
)

// Weights are the additive points a matching signal contributes. A zero tag
// weight disables that category.
type Weights struct {
	Style          float64 `json:"style" koanf:"style"`
	Color          float64 `json:"color" koanf:"color"`
	Season         float64 `json:"season" koanf:"season"`
	Occasion       float64 `json:"occasion" koanf:"occasion"`
	Fit            float64 `json:"fit" koanf:"fit"`
	Fabric         float64 `json:"fabric" koanf:"fabric"`
	BudgetInRange  float64 `json:"budget_in_range" koanf:"budget_in_range"`
	BudgetBelowMin float64 `json:"budget_below_min" koanf:"budget_below_min"`
	BudgetAboveMax float64 `json:"budget_above_max" koanf:"budget_above_max"`
}

// DefaultWeights returns the standard scoring table.
func DefaultWeights() Weights {
	return Weights{
		Style:          3,
		Color:          2,
		Season:         1.5,
		Occasion:       1.5,
		BudgetInRange:  2,
		BudgetBelowMin: -1,
		BudgetAboveMax: -3,
	}
}

func (w Weights) forCategory(category Category) float64 {
	switch category {
	case CategoryStyle:
		return w.Style
	case CategoryColor:
		return w.Color
	case CategorySeason:
		return w.Season
	case CategoryOccasion:
		return w.Occasion
	case CategoryFit:
		return w.Fit
	case CategoryFabric:
		return w.Fabric
	}
	return 0
}

const (
	// MaxReasons caps how many match reasons end up in the reason string.
	MaxReasons = 3
	// ReasonBaseline is used when no category matched.
	ReasonBaseline = "baseline recommendation"

	reasonSeparator = " + "
)

var reasonFormats = map[Category]string{
	CategoryStyle:    "%s style",
	CategoryColor:    "%s preferred",
	CategorySeason:   "%s season",
	CategoryOccasion: "%s occasion",
	CategoryFit:      "%s fit",
	CategoryFabric:   "%s fabric",
}

// ScoredItem is the result of scoring one catalog item.
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Scorer scores catalog items against a profile. It holds no mutable state.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights Weights) *Scorer {
	return &Scorer{weights: weights}
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Score computes the additive match score and reason string for item.
func (s *Scorer) Score(item models.CatalogItem, profile *PreferenceProfile) ScoredItem {
	tags := make(map[string]struct{}, len(item.Tags))
	for _, tag := range item.Tags {
		tags[Normalize(tag)] = struct{}{}
	}
	attrs := itemAttributes(item.Attributes)

	var (
		score   float64
		reasons []string
	)
	for _, category := range TagCategories {
		weight := s.weights.forCategory(category)
		if weight == 0 {
			continue
		}
		for _, pref := range profile.Tags(category).Values() {
			_, tagged := tags[pref]
			_, attributed := attrs[category][pref]
			if !tagged && !attributed {
				continue
			}
			score += weight
			reasons = append(reasons, fmt.Sprintf(reasonFormats[category], pref))
		}
	}

	if b := profile.Budget; b != nil {
		switch {
		case item.Price < b.Min:
			score += s.weights.BudgetBelowMin
		case b.Max != nil && item.Price >= *b.Max:
			score += s.weights.BudgetAboveMax
		default:
			score += s.weights.BudgetInRange
		}
	}

	reason := ReasonBaseline
	if len(reasons) > 0 {
		if len(reasons) > MaxReasons {
			reasons = reasons[:MaxReasons]
		}
		reason = strings.Join(reasons, reasonSeparator)
	}
	return ScoredItem{ItemID: item.ID, Score: score, Reason: reason}
}

// itemAttributes indexes the normalized attribute values by category.
func itemAttributes(a models.Attributes) map[Category]map[string]struct{} {
	out := make(map[Category]map[string]struct{}, len(TagCategories))
	put := func(category Category, values ...string) {
		for _, v := range values {
			v = Normalize(v)
			if v == "" {
				continue
			}
			if out[category] == nil {
				out[category] = make(map[string]struct{})
			}
			out[category][v] = struct{}{}
		}
	}
	put(CategoryStyle, a.Style)
	put(CategoryColor, a.Color)
	put(CategoryFit, a.Fit)
	put(CategoryFabric, a.Fabric)
	put(CategorySeason, a.Seasons...)
	put(CategoryOccasion, a.Occasions...)
	return out
}
