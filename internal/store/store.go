// Package store defines the contracts the recommendation engine uses to reach
// its external collaborators, and the errors those collaborators report.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/yishak-cs/stylematch/internal/models"
)

var (
	// ErrNotFound reports that an owner has no stored answers.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied reports that the backend refused the read or write.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnavailable reports that a store could not be reached or failed.
	ErrUnavailable = errors.New("data unavailable")
	// ErrLocked reports that another refresh holds the owner lock.
	ErrLocked = errors.New("owner locked")
)

// Unavailable wraps a backend failure so it matches ErrUnavailable while
// keeping the backend error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// AnswerStore persists quiz answers per owner.
type AnswerStore interface {
	FetchAnswers(ctx context.Context, ownerID string) ([]models.Answer, error)
	ReplaceAnswers(ctx context.Context, ownerID string, answers []models.Answer) error
}

// QuestionStore lists the quiz questions in display order.
type QuestionStore interface {
	FetchQuestions(ctx context.Context) ([]models.Question, error)
}

// CatalogStore returns active products. An empty catalog is not an error.
type CatalogStore interface {
	FetchActiveCatalog(ctx context.Context) ([]models.CatalogItem, error)
}

// RecommendationStore persists ranked recommendations per owner.
type RecommendationStore interface {
	DeleteForOwner(ctx context.Context, ownerID string) error
	Insert(ctx context.Context, rows []models.Recommendation) error
	FetchRanked(ctx context.Context, ownerID string) ([]models.RankedRecommendation, error)
}

// Backend is a single storage engine serving every contract.
type Backend interface {
	AnswerStore
	QuestionStore
	CatalogStore
	RecommendationStore
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}
