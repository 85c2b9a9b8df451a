package recommend

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/yishak-cs/stylematch/internal/models"
)

// BudgetRange is a half-open price interval [Min, Max). A nil Max is unbounded.
type BudgetRange struct {
	Min models.Money  `json:"min"`
	Max *models.Money `json:"max"`
}

// Bounded returns a [min, max) range.
func Bounded(min, max models.Money) BudgetRange {
	return BudgetRange{Min: min, Max: &max}
}

// AtLeast returns a [min, ∞) range.
func AtLeast(min models.Money) BudgetRange {
	return BudgetRange{Min: min}
}

// Contains reports whether price falls inside the range.
func (b BudgetRange) Contains(price models.Money) bool {
	if price < b.Min {
		return false
	}
	return b.Max == nil || price < *b.Max
}

// Equal compares two ranges by value.
func (b BudgetRange) Equal(other BudgetRange) bool {
	if b.Min != other.Min {
		return false
	}
	if b.Max == nil || other.Max == nil {
		return b.Max == nil && other.Max == nil
	}
	return *b.Max == *other.Max
}

// Scale points map to fixed brackets in minor units.
var scaleBrackets = map[int]BudgetRange{
	1: Bounded(0, 30000),
	2: Bounded(30000, 50000),
	3: Bounded(50000, 100000),
	4: Bounded(100000, 200000),
	5: AtLeast(200000),
}

// BudgetFromScale maps a 1-5 scale point to its budget bracket.
func BudgetFromScale(point int) (BudgetRange, bool) {
	b, ok := scaleBrackets[point]
	return b, ok
}

var amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

var (
	upperBoundMarkers = []string{"under", "below", "less than", "up to", "or less", "max", "이하", "미만", "까지"}
	lowerBoundMarkers = []string{"+", "over", "above", "and up", "or more", "plus", "이상", "초과"}
	rangeSeparators   = []string{"-", "~", "–", " to "}
)

// BudgetFromPhrase parses a free-text budget bracket such as "under $50",
// "$50-$100", "$200+" or "50,000원 이하". Dollar amounts are converted to
// cents; won and bare amounts are taken as minor units already.
// Unrecognized phrases yield no signal.
func BudgetFromPhrase(phrase string) (BudgetRange, bool) {
	p := Normalize(phrase)
	if p == "" {
		return BudgetRange{}, false
	}

	multiplier := 1.0
	if strings.Contains(p, "$") || strings.Contains(p, "usd") || strings.Contains(p, "dollar") {
		multiplier = 100
	}

	raw := amountPattern.FindAllString(p, -1)
	if len(raw) == 0 {
		return BudgetRange{}, false
	}
	amounts := make([]models.Money, 0, len(raw))
	for _, s := range raw {
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return BudgetRange{}, false
		}
		minor := math.Round(f * multiplier)
		if minor < 0 || minor >= math.MaxInt64 {
			return BudgetRange{}, false
		}
		amounts = append(amounts, models.Money(minor))
	}

	switch {
	case len(amounts) == 2 && containsAny(p, rangeSeparators):
		lo, hi := amounts[0], amounts[1]
		if lo >= hi {
			return BudgetRange{}, false
		}
		return Bounded(lo, hi), true
	case len(amounts) == 1 && containsAny(p, upperBoundMarkers):
		if amounts[0] <= 0 {
			return BudgetRange{}, false
		}
		return Bounded(0, amounts[0]), true
	case len(amounts) == 1 && containsAny(p, lowerBoundMarkers):
		return AtLeast(amounts[0]), true
	}
	return BudgetRange{}, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
