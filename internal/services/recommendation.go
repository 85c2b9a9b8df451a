package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/metrics"
	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/recommend"
	"github.com/yishak-cs/stylematch/internal/store"
)

// Config bounds request-level knobs of the service.
type Config struct {
	TopK         int
	MaxK         int
	StoreTimeout time.Duration
}

// Deps are the collaborators of RecommendationService.
type Deps struct {
	Answers         store.AnswerStore
	Questions       store.QuestionStore
	Catalog         store.CatalogStore
	Recommendations store.RecommendationStore
	Locker          store.Locker
	Engine          *recommend.Engine
	Metrics         *metrics.Metrics
	Logger          *logger.Logger
}

// RecommendationService handles all recommendation logic
type RecommendationService struct {
	answers   store.AnswerStore
	questions store.QuestionStore
	catalog   store.CatalogStore
	recs      store.RecommendationStore
	engine    *recommend.Engine
	refresher *Refresher
	metrics   *metrics.Metrics
	log       *logger.Logger
	cfg       Config
}

// NewRecommendationService creates a new recommendation service
func NewRecommendationService(d Deps, cfg Config) *RecommendationService {
	if cfg.TopK <= 0 {
		cfg.TopK = 20
	}
	if cfg.MaxK < cfg.TopK {
		cfg.MaxK = max(cfg.TopK, 100)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if d.Engine == nil {
		d.Engine = recommend.NewEngine(recommend.DefaultVocabulary(), recommend.DefaultWeights())
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}

	return &RecommendationService{
		answers:   d.Answers,
		questions: d.Questions,
		catalog:   d.Catalog,
		recs:      d.Recommendations,
		engine:    d.Engine,
		refresher: NewRefresher(d.Recommendations, d.Locker, cfg.StoreTimeout, d.Logger),
		metrics:   d.Metrics,
		log:       d.Logger,
		cfg:       cfg,
	}
}

// ResolveK turns a requested k into the effective one: 0 means the configured
// default and anything above MaxK is capped.
func (s *RecommendationService) ResolveK(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, invalid("k must not be negative, got %d", requested)
	case requested == 0:
		return s.cfg.TopK, nil
	case requested > s.cfg.MaxK:
		return s.cfg.MaxK, nil
	}
	return requested, nil
}

// Questions lists the quiz questions.
func (s *RecommendationService) Questions(ctx context.Context) ([]models.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	questions, err := s.questions.FetchQuestions(ctx)
	if err != nil {
		s.metrics.StoreError("fetch_questions")
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	return questions, nil
}

// Catalog lists the active catalog.
func (s *RecommendationService) Catalog(ctx context.Context) ([]models.CatalogItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	items, err := s.catalog.FetchActiveCatalog(ctx)
	if err != nil {
		s.metrics.StoreError("fetch_catalog")
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	return items, nil
}

// SaveAnswers replaces the stored answer set of an owner.
func (s *RecommendationService) SaveAnswers(ctx context.Context, ownerID string, answers []models.Answer) error {
	if err := validateOwner(ownerID); err != nil {
		return err
	}
	if err := validateAnswers(answers); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.answers.ReplaceAnswers(ctx, ownerID, answers); err != nil {
		s.metrics.StoreError("replace_answers")
		return fmt.Errorf("failed to save answers: %w", err)
	}
	s.log.Info("answers saved", "owner_id", ownerID, "count", len(answers))
	return nil
}

// Profile aggregates the stored answers of an owner.
func (s *RecommendationService) Profile(ctx context.Context, ownerID string) (*recommend.PreferenceProfile, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	var answers []models.Answer
	var questions []models.Question

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		answers, err = s.fetchAnswers(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		questions = s.fetchQuestionsOrNil(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.profile(answers, questions), nil
}

// Generate recomputes and stores the top-k recommendations of an owner and
// returns the number of rows written.
//
// Answers, questions and catalog are read concurrently. When the question
// store fails aggregation falls back to value-shape dispatch. An empty
// catalog returns ErrEmptyCatalog and leaves stored rows alone.
func (s *RecommendationService) Generate(ctx context.Context, ownerID string, k int) (count int, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveRefresh(refreshOutcome(err), count, time.Since(start))
	}()

	if err := validateOwner(ownerID); err != nil {
		return 0, err
	}
	k, err = s.ResolveK(k)
	if err != nil {
		return 0, err
	}

	var (
		answers   []models.Answer
		questions []models.Question
		items     []models.CatalogItem
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		answers, err = s.fetchAnswers(gctx, ownerID)
		return err
	})
	g.Go(func() error {
		questions = s.fetchQuestionsOrNil(gctx)
		return nil
	})
	g.Go(func() (err error) {
		items, err = s.Catalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("refresh inputs unavailable", "owner_id", ownerID, "error", err)
		return 0, err
	}

	profile := s.profile(answers, questions)
	ranked := s.engine.Rank(items, profile, k)
	s.metrics.ObserveScored(len(items))
	if len(ranked) == 0 {
		return 0, ErrEmptyCatalog
	}

	count, err = s.refresher.Refresh(ctx, ownerID, ranked)
	if err != nil {
		s.log.Error("refresh failed", "owner_id", ownerID, "error", err)
		return 0, err
	}

	s.log.Info("recommendations generated",
		"owner_id", ownerID,
		"count", count,
		"catalog_size", len(items),
		"fallback", profile.Fallback,
		"malformed", profile.Malformed,
	)
	return count, nil
}

// Preview ranks the catalog against an answer set without persisting.
func (s *RecommendationService) Preview(ctx context.Context, answers []models.Answer, k int) ([]recommend.ScoredItem, *recommend.PreferenceProfile, error) {
	if err := validateAnswers(answers); err != nil {
		return nil, nil, err
	}
	k, err := s.ResolveK(k)
	if err != nil {
		return nil, nil, err
	}

	var questions []models.Question
	var items []models.CatalogItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		questions = s.fetchQuestionsOrNil(gctx)
		return nil
	})
	g.Go(func() (err error) {
		items, err = s.Catalog(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	profile := s.profile(answers, questions)
	ranked := s.engine.Rank(items, profile, k)
	s.metrics.ObserveScored(len(items))
	if len(ranked) == 0 {
		return nil, profile, ErrEmptyCatalog
	}
	return ranked, profile, nil
}

// GetRecommendations returns the stored recommendations of an owner in rank
// order.
func (s *RecommendationService) GetRecommendations(ctx context.Context, ownerID string) ([]models.RankedRecommendation, error) {
	if err := validateOwner(ownerID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	recs, err := s.recs.FetchRanked(ctx, ownerID)
	if err != nil {
		s.metrics.StoreError("fetch_recommendations")
		return nil, fmt.Errorf("failed to get recommendations: %w", err)
	}
	return recs, nil
}

func (s *RecommendationService) fetchAnswers(ctx context.Context, ownerID string) ([]models.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	answers, err := s.answers.FetchAnswers(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.metrics.StoreError("fetch_answers")
		}
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

// fetchQuestionsOrNil never fails: without questions the aggregator
// dispatches on value shape.
func (s *RecommendationService) fetchQuestionsOrNil(ctx context.Context) []models.Question {
	questions, err := s.Questions(ctx)
	if err != nil {
		s.log.Warn("questions unavailable, aggregating by answer shape", "error", err)
		return nil
	}
	return questions
}

func (s *RecommendationService) profile(answers []models.Answer, questions []models.Question) *recommend.PreferenceProfile {
	profile := s.engine.Profile(answers, questions)
	s.metrics.ObserveProfile(profile.Malformed, profile.Fallback)
	if profile.Malformed > 0 {
		s.log.Debug("skipped malformed answers", "count", profile.Malformed)
	}
	return profile
}

func validateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return invalid("owner id is required")
	}
	return nil
}

func validateAnswers(answers []models.Answer) error {
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a.QuestionID) == "" {
			return invalid("answer without question_id")
		}
		if _, dup := seen[a.QuestionID]; dup {
			return invalid("duplicate answer for question %q", a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
	}
	return nil
}

func refreshOutcome(err error) string {
	var partial *RefreshPartialFailureError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyCatalog):
		return "empty_catalog"
	case errors.Is(err, ErrRefreshInProgress):
		return "locked"
	case errors.As(err, &partial):
		return "partial_failure"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
