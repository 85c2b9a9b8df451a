package recommend

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/yishak-cs/stylematch/internal/models"
)

// TagSet is an insertion-ordered set of normalized tags.
type TagSet struct {
	order []string
	index map[string]struct{}
}

// Add inserts tag if it is not present yet.
func (s *TagSet) Add(tag string) {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[tag]; ok {
		return
	}
	s.index[tag] = struct{}{}
	s.order = append(s.order, tag)
}

// Has reports whether tag is in the set.
func (s *TagSet) Has(tag string) bool {
	_, ok := s.index[tag]
	return ok
}

// Len returns the number of tags.
func (s *TagSet) Len() int { return len(s.order) }

// Values returns the tags in insertion order.
func (s *TagSet) Values() []string {
	return append([]string(nil), s.order...)
}

// MarshalJSON encodes the set as a list in insertion order.
func (s TagSet) MarshalJSON() ([]byte, error) {
	if s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

type budgetSource int

const (
	budgetNone budgetSource = iota
	budgetPhrase
	budgetScale
)

// PreferenceProfile is the aggregated view of an answer set.
type PreferenceProfile struct {
	Styles    TagSet       `json:"styles"`
	Colors    TagSet       `json:"colors"`
	Seasons   TagSet       `json:"seasons"`
	Occasions TagSet       `json:"occasions"`
	Fits      TagSet       `json:"fits"`
	Fabrics   TagSet       `json:"fabrics"`
	Budget    *BudgetRange `json:"budget,omitempty"`

	// Fallback is set when no answer produced a tag and the default styles
	// were applied.
	Fallback bool `json:"fallback"`
	// Malformed counts answers whose value was neither a token, a token list
	// nor a number.
	Malformed int `json:"malformed"`

	budgetFrom budgetSource
}

// Tags returns the set backing a category, or nil for CategoryBudget.
func (p *PreferenceProfile) Tags(category Category) *TagSet {
	switch category {
	case CategoryStyle:
		return &p.Styles
	case CategoryColor:
		return &p.Colors
	case CategorySeason:
		return &p.Seasons
	case CategoryOccasion:
		return &p.Occasions
	case CategoryFit:
		return &p.Fits
	case CategoryFabric:
		return &p.Fabrics
	}
	return nil
}

// IsEmpty reports whether every tag category is empty. The budget does not
// count.
func (p *PreferenceProfile) IsEmpty() bool {
	for _, category := range TagCategories {
		if p.Tags(category).Len() > 0 {
			return false
		}
	}
	return true
}

// offerBudget applies the precedence rule: a scale answer overrides a phrase,
// otherwise the first signal wins.
func (p *PreferenceProfile) offerBudget(b BudgetRange, from budgetSource) {
	if p.Budget == nil || (from == budgetScale && p.budgetFrom == budgetPhrase) {
		p.Budget = &b
		p.budgetFrom = from
	}
}

// DefaultFallbackStyles is applied when an answer set yields no tags at all.
var DefaultFallbackStyles = []string{"casual", "minimal"}

// Aggregator turns an answer set into a PreferenceProfile.
type Aggregator struct {
	vocab    *Vocabulary
	fallback []string
}

// NewAggregator creates an aggregator over vocab. A nil vocab uses the
// default vocabulary.
func NewAggregator(vocab *Vocabulary) *Aggregator {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Aggregator{vocab: vocab, fallback: DefaultFallbackStyles}
}

// Aggregate walks the answers and accumulates the preference profile.
//
// Questions are optional. When an answer's question declares a category the
// answer is dispatched by that category; otherwise it is dispatched by the
// shape of its value. Answers are visited in question order, then by
// question id, so "first budget wins" is deterministic.
func (a *Aggregator) Aggregate(answers []models.Answer, questions []models.Question) *PreferenceProfile {
	profile := &PreferenceProfile{}
	byID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for _, answer := range orderAnswers(answers, byID) {
		value, ok := decodeValue(answer.Value)
		if !ok {
			profile.Malformed++
			continue
		}
		if value == nil {
			// unanswered question
			continue
		}

		q := byID[answer.QuestionID]
		category, hasCategory := Category(""), false
		if q.Category != "" {
			category, hasCategory = ParseCategory(q.Category)
		}
		if hasCategory {
			a.applyCategory(profile, category, value, q)
		} else {
			a.applyShape(profile, value, q)
		}
	}

	if profile.IsEmpty() {
		for _, tag := range a.fallback {
			profile.Styles.Add(tag)
		}
		profile.Fallback = true
	}
	return profile
}

// applyShape dispatches on the value shape alone.
func (a *Aggregator) applyShape(p *PreferenceProfile, value any, q models.Question) {
	switch v := value.(type) {
	case json.Number:
		if point, ok := scalePoint(v, q); ok {
			if b, ok := BudgetFromScale(point); ok {
				p.offerBudget(b, budgetScale)
			}
		}
	case string:
		a.applyToken(p, v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				a.applyToken(p, s)
			}
		}
	}
}

func (a *Aggregator) applyToken(p *PreferenceProfile, raw string) {
	token := Normalize(raw)
	for _, category := range a.vocab.Classify(token) {
		p.Tags(category).Add(token)
	}
	if b, ok := BudgetFromPhrase(raw); ok {
		p.offerBudget(b, budgetPhrase)
	}
}

// applyCategory dispatches on the question's declared category.
func (a *Aggregator) applyCategory(p *PreferenceProfile, category Category, value any, q models.Question) {
	if category == CategoryBudget {
		switch v := value.(type) {
		case json.Number:
			if point, ok := scalePoint(v, q); ok {
				if b, ok := BudgetFromScale(point); ok {
					p.offerBudget(b, budgetScale)
				}
			}
		case string:
			if b, ok := BudgetFromPhrase(v); ok {
				p.offerBudget(b, budgetPhrase)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if b, ok := BudgetFromPhrase(s); ok {
						p.offerBudget(b, budgetPhrase)
					}
				}
			}
		}
		return
	}

	set := p.Tags(category)
	switch v := value.(type) {
	case json.Number:
		// Only style questions carry a meaning on the scale extremes.
		if category != CategoryStyle {
			return
		}
		point, ok := scalePoint(v, q)
		if !ok {
			return
		}
		if point <= 2 {
			set.Add("minimal")
		}
		if point >= 4 {
			set.Add("street")
		}
	case string:
		if token := Normalize(v); a.vocab.Contains(category, token) {
			set.Add(token)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if token := Normalize(s); a.vocab.Contains(category, token) {
					set.Add(token)
				}
			}
		}
	}
}

// decodeValue returns a string, []any, json.Number or nil. ok is false when
// the value has any other shape.
func decodeValue(raw json.RawMessage) (any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case nil, string, []any, json.Number:
		return v, true
	}
	return nil, false
}

// Scale answers default to 1-5 unless the question sets its own bounds.
const (
	ScaleMin = 1
	ScaleMax = 5
)

// scalePoint accepts whole numbers inside the question's scale bounds.
func scalePoint(n json.Number, q models.Question) (int, bool) {
	lo, hi := ScaleMin, ScaleMax
	if q.Min != nil {
		lo = *q.Min
	}
	if q.Max != nil {
		hi = *q.Max
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < float64(lo) || f > float64(hi) {
		return 0, false
	}
	return int(f), true
}

func orderAnswers(answers []models.Answer, questions map[string]models.Question) []models.Answer {
	ordered := append([]models.Answer(nil), answers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		qi, iKnown := questions[ordered[i].QuestionID]
		qj, jKnown := questions[ordered[j].QuestionID]
		if iKnown != jKnown {
			return iKnown
		}
		if iKnown && qi.OrderIndex != qj.OrderIndex {
			return qi.OrderIndex < qj.OrderIndex
		}
		return ordered[i].QuestionID < ordered[j].QuestionID
	})
	return ordered
}
