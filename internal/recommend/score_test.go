package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yishak-cs/stylematch/internal/models"
)

func profileWith(build func(p *PreferenceProfile)) *PreferenceProfile {
	p := &PreferenceProfile{}
	build(p)
	return p
}

func TestScore_TagAndAttributeMatches(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	profile := profileWith(func(p *PreferenceProfile) {
		p.Styles.Add("minimal")
		p.Colors.Add("navy")
		p.Seasons.Add("fall")
		p.Occasions.Add("work")
	})

	item := models.CatalogItem{
		ID:   "coat",
		Tags: []string{"Minimal"},
		Attributes: models.Attributes{
			Color:     "Navy",
			Seasons:   models.StringList{"fall", "winter"},
			Occasions: models.StringList{"work"},
		},
		Active: true,
	}

	got := scorer.Score(item, profile)
	assert.Equal(t, "coat", got.ItemID)
	assert.InDelta(t, 3+2+1.5+1.5, got.Score, 1e-9)
	assert.Equal(t, "minimal style + navy preferred + fall season", got.Reason)
}

func TestScore_EachPreferenceTagCounts(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	profile := profileWith(func(p *PreferenceProfile) {
		p.Styles.Add("minimal")
		p.Styles.Add("classic")
	})
	item := models.CatalogItem{ID: "a", Tags: []string{"minimal"}, Attributes: models.Attributes{Style: "classic"}}

	got := scorer.Score(item, profile)
	assert.InDelta(t, 6, got.Score, 1e-9)
	assert.Equal(t, "minimal style + classic style", got.Reason)
}

func TestScore_BaselineReason(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	profile := profileWith(func(p *PreferenceProfile) { p.Styles.Add("street") })

	got := scorer.Score(models.CatalogItem{ID: "x", Tags: []string{"minimal"}}, profile)
	assert.Zero(t, got.Score)
	assert.Equal(t, ReasonBaseline, got.Reason)
}

func TestScore_BudgetPartition(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	b := Bounded(50000, 100000)
	profile := &PreferenceProfile{Budget: &b}

	tests := []struct {
		price models.Money
		want  float64
	}{
		{40000, -1},
		{50000, 2},
		{70000, 2},
		{99999, 2},
		{100000, -3},
		{150000, -3},
	}
	for _, tt := range tests {
		got := scorer.Score(models.CatalogItem{ID: "p", Price: tt.price}, profile)
		assert.InDelta(t, tt.want, got.Score, 1e-9, "price %d", tt.price)
		assert.Equal(t, ReasonBaseline, got.Reason)
	}
}

func TestScore_UnboundedBudget(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	b := AtLeast(200000)
	profile := &PreferenceProfile{Budget: &b}

	assert.InDelta(t, 2, scorer.Score(models.CatalogItem{Price: 900000}, profile).Score, 1e-9)
	assert.InDelta(t, -1, scorer.Score(models.CatalogItem{Price: 100}, profile).Score, 1e-9)
}

func TestScore_ReasonsCapped(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	profile := profileWith(func(p *PreferenceProfile) {
		p.Styles.Add("minimal")
		p.Colors.Add("black")
		p.Colors.Add("white")
		p.Seasons.Add("summer")
	})
	item := models.CatalogItem{Tags: []string{"minimal", "black", "white", "summer"}}

	got := scorer.Score(item, profile)
	assert.InDelta(t, 3+2+2+1.5, got.Score, 1e-9)
	assert.Equal(t, "minimal style + black preferred + white preferred", got.Reason)
}

func TestScore_MonotonicInStyleTags(t *testing.T) {
	scorer := NewScorer(DefaultWeights())
	item := models.CatalogItem{Tags: []string{"minimal", "street"}, Price: 20000}
	b := Bounded(0, 30000)

	base := &PreferenceProfile{Budget: &b}
	base.Styles.Add("minimal")
	more := &PreferenceProfile{Budget: &b}
	more.Styles.Add("minimal")
	more.Styles.Add("street")
	unrelated := &PreferenceProfile{Budget: &b}
	unrelated.Styles.Add("minimal")
	unrelated.Styles.Add("vintage")

	assert.Greater(t, scorer.Score(item, more).Score, scorer.Score(item, base).Score)
	assert.Equal(t, scorer.Score(item, base).Score, scorer.Score(item, unrelated).Score)
}

func TestScore_UnknownTokensContributeNothing(t *testing.T) {
	agg := NewAggregator(nil)
	scorer := NewScorer(DefaultWeights())
	item := models.CatalogItem{Tags: []string{"goth", "minimal"}}

	withNoise := agg.Aggregate([]models.Answer{answer("q1", `"minimal"`), answer("q2", `"goth"`)}, nil)
	clean := agg.Aggregate([]models.Answer{answer("q1", `"minimal"`)}, nil)

	assert.Equal(t, scorer.Score(item, clean), scorer.Score(item, withNoise))
}

func TestScore_FitAndFabricDisabledByDefault(t *testing.T) {
	profile := profileWith(func(p *PreferenceProfile) {
		p.Fits.Add("slim")
		p.Fabrics.Add("wool")
	})
	item := models.CatalogItem{Tags: []string{"wool"}, Attributes: models.Attributes{Fit: "slim"}}

	got := NewScorer(DefaultWeights()).Score(item, profile)
	assert.Zero(t, got.Score)
	assert.Equal(t, ReasonBaseline, got.Reason)

	w := DefaultWeights()
	w.Fit, w.Fabric = 1, 0.5
	got = NewScorer(w).Score(item, profile)
	assert.InDelta(t, 1.5, got.Score, 1e-9)
	assert.Equal(t, "slim fit + wool fabric", got.Reason)
}
