package models

import (
	"encoding/json"
	"time"
)

// Money is an amount in the smallest currency unit (cents, won).
type Money int64

// QuestionType is the input shape a quiz question expects.
type QuestionType string

const (
	QuestionSingle QuestionType = "single"
	QuestionMulti  QuestionType = "multi"
	QuestionScale  QuestionType = "scale"
)

// Question is a style-quiz question. Category, when set, names the preference
// the answer feeds (style, color, season, occasion, fit, fabric or budget).
type Question struct {
	ID         string       `json:"id"`
	Prompt     string       `json:"question"`
	Type       QuestionType `json:"type"`
	Category   string       `json:"category,omitempty"`
	Options    []string     `json:"options,omitempty"`
	Min        *int         `json:"min,omitempty"`
	Max        *int         `json:"max,omitempty"`
	OrderIndex int          `json:"order_index"`
}

// Answer is a single quiz answer. Value is kept raw: a string token, a list of
// tokens or a scale number.
type Answer struct {
	QuestionID string          `json:"question_id" binding:"required"`
	Value      json.RawMessage `json:"value"`
}

// StringList decodes from either a JSON string or a JSON array of strings.
type StringList []string

// UnmarshalJSON accepts "summer" as well as ["summer", "fall"].
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
			return nil
		}
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// Attributes holds structured product attributes next to the free tag list.
type Attributes struct {
	Style     string     `json:"style,omitempty"`
	Color     string     `json:"color,omitempty"`
	Fit       string     `json:"fit,omitempty"`
	Fabric    string     `json:"fabric,omitempty"`
	Seasons   StringList `json:"season,omitempty"`
	Occasions StringList `json:"occasion,omitempty"`
}

// CatalogItem represents a product in the catalog
type CatalogItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Brand      string     `json:"brand,omitempty"`
	Price      Money      `json:"price_cents"`
	Tags       []string   `json:"tags"`
	Attributes Attributes `json:"attributes"`
	Active     bool       `json:"active"`
}

// Recommendation is a persisted, ranked product for an owner (a user or a quiz
// submission).
type Recommendation struct {
	OwnerID   string    `json:"owner_id"`
	ProductID string    `json:"product_id"`
	Score     float64   `json:"score"`
	Reason    string    `json:"reason"`
	Position  int       `json:"position"`
	RefreshID string    `json:"refresh_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedRecommendation is a stored recommendation joined with the catalog
// fields needed for display.
type RankedRecommendation struct {
	Recommendation
	Title string   `json:"title"`
	Brand string   `json:"brand,omitempty"`
	Price Money    `json:"price_cents"`
	Tags  []string `json:"tags"`
}
