package recommend

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a preference dimension a tag can belong to.
type Category string

const (
	CategoryStyle    Category = "style"
	CategoryColor    Category = "color"
	CategorySeason   Category = "season"
	CategoryOccasion Category = "occasion"
	CategoryFit      Category = "fit"
	CategoryFabric   Category = "fabric"

	// CategoryBudget never holds tags; questions use it to mark price answers.
	CategoryBudget Category = "budget"
)

// TagCategories lists the tag-bearing categories in scoring order.
var TagCategories = []Category{
	CategoryStyle,
	CategoryColor,
	CategorySeason,
	CategoryOccasion,
	CategoryFit,
	CategoryFabric,
}

// ParseCategory maps a free-form category name to a Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(Normalize(s)) {
	case CategoryStyle, "styles":
		return CategoryStyle, true
	case CategoryColor, "colors", "colour":
		return CategoryColor, true
	case CategorySeason, "seasons":
		return CategorySeason, true
	case CategoryOccasion, "occasions":
		return CategoryOccasion, true
	case CategoryFit, "fits":
		return CategoryFit, true
	case CategoryFabric, "fabrics":
		return CategoryFabric, true
	case CategoryBudget, "price":
		return CategoryBudget, true
	}
	return "", false
}

// Normalize trims and lower-cases a raw answer token or tag.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Vocabulary is the fixed table of known tags per category. It is read-only
// after construction and safe for concurrent use.
type Vocabulary struct {
	tags map[Category]map[string]struct{}
}

// NewVocabulary builds a vocabulary from per-category tag lists. Tags are
// normalized; empty tags are ignored.
func NewVocabulary(tables map[Category][]string) *Vocabulary {
	v := &Vocabulary{tags: make(map[Category]map[string]struct{}, len(tables))}
	for category, tags := range tables {
		v.add(category, tags...)
	}
	return v
}

// DefaultVocabulary returns the built-in style-quiz vocabulary.
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(map[Category][]string{
		CategoryStyle: {
			"minimal", "casual", "street", "classic", "athleisure",
			"sporty", "vintage", "preppy", "work",
		},
		CategoryColor: {
			"black", "white", "gray", "navy", "beige", "brown", "olive",
			"blue", "red", "pastels", "ivory", "cream", "charcoal", "taupe",
			"sand", "sage", "camel", "forest", "clay", "rust",
		},
		CategorySeason:   {"spring", "summer", "fall", "winter"},
		CategoryFit:      {"oversized", "slim", "regular", "relaxed", "wide", "straight"},
		CategoryOccasion: {"work", "casual", "date", "travel", "workout", "events"},
		CategoryFabric:   {"cotton", "linen", "wool", "denim", "knit", "technical"},
	})
}

func (v *Vocabulary) add(category Category, tags ...string) {
	set, ok := v.tags[category]
	if !ok {
		set = make(map[string]struct{}, len(tags))
		v.tags[category] = set
	}
	for _, tag := range tags {
		if tag = Normalize(tag); tag != "" {
			set[tag] = struct{}{}
		}
	}
}

// Contains reports whether token is a known tag of category.
func (v *Vocabulary) Contains(category Category, token string) bool {
	_, ok := v.tags[category][Normalize(token)]
	return ok
}

// Classify returns every category the token belongs to, in TagCategories
// order. Unknown tokens yield an empty result.
func (v *Vocabulary) Classify(token string) []Category {
	token = Normalize(token)
	if token == "" {
		return nil
	}
	var out []Category
	for _, category := range TagCategories {
		if _, ok := v.tags[category][token]; ok {
			out = append(out, category)
		}
	}
	return out
}

// Tags returns the sorted tags of a category.
func (v *Vocabulary) Tags(category Category) []string {
	out := make([]string, 0, len(v.tags[category]))
	for tag := range v.tags[category] {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Merge returns a new vocabulary holding the tags of both v and other.
func (v *Vocabulary) Merge(other *Vocabulary) *Vocabulary {
	merged := NewVocabulary(nil)
	for _, src := range []*Vocabulary{v, other} {
		if src == nil {
			continue
		}
		for category, set := range src.tags {
			for tag := range set {
				merged.add(category, tag)
			}
		}
	}
	return merged
}

// vocabularyFile is the YAML layout accepted by LoadVocabularyFile:
//
//	mode: extend   # or replace
//	categories:
//	  color: [mint, lilac]
type vocabularyFile struct {
	Mode       string              `yaml:"mode"`
	Categories map[string][]string `yaml:"categories"`
}

// LoadVocabularyFile reads a vocabulary table from YAML. With mode "extend"
// (the default) the file's tags are merged into base; with "replace" the file
// is used on its own.
func LoadVocabularyFile(path string, base *Vocabulary) (*Vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	var doc vocabularyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse vocabulary file %s: %w", path, err)
	}

	tables := make(map[Category][]string, len(doc.Categories))
	for name, tags := range doc.Categories {
		category, ok := ParseCategory(name)
		if !ok || category == CategoryBudget {
			return nil, fmt.Errorf("vocabulary file %s: unknown category %q", path, name)
		}
		tables[category] = append(tables[category], tags...)
	}
	loaded := NewVocabulary(tables)

	switch Normalize(doc.Mode) {
	case "", "extend":
		return base.Merge(loaded), nil
	case "replace":
		return loaded, nil
	default:
		return nil, fmt.Errorf("vocabulary file %s: unknown mode %q", path, doc.Mode)
	}
}
