package services

import (
	"context"
	"sort"
	"sync"

	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/store"
)

// memStore is an in-memory store.Backend with injectable failures.
type memStore struct {
	mu        sync.Mutex
	answers   map[string][]models.Answer
	questions []models.Question
	catalog   []models.CatalogItem
	recs      map[string][]models.Recommendation

	answersErr   error
	questionsErr error
	catalogErr   error
	deleteErr    error
	insertErr    error

	deletes int
	inserts int
}

func newMemStore() *memStore {
	return &memStore{
		answers: map[string][]models.Answer{},
		recs:    map[string][]models.Recommendation{},
	}
}

func (m *memStore) FetchAnswers(_ context.Context, ownerID string) ([]models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answersErr != nil {
		return nil, m.answersErr
	}
	answers, ok := m.answers[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return answers, nil
}

func (m *memStore) ReplaceAnswers(_ context.Context, ownerID string, answers []models.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[ownerID] = answers
	return nil
}

func (m *memStore) FetchQuestions(context.Context) ([]models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.questionsErr != nil {
		return nil, m.questionsErr
	}
	return m.questions, nil
}

func (m *memStore) FetchActiveCatalog(context.Context) ([]models.CatalogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalogErr != nil {
		return nil, m.catalogErr
	}
	var out []models.CatalogItem
	for _, item := range m.catalog {
		if item.Active {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) DeleteForOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.recs, ownerID)
	return nil
}

func (m *memStore) Insert(_ context.Context, rows []models.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, r := range rows {
		m.recs[r.OwnerID] = append(m.recs[r.OwnerID], r)
	}
	return nil
}

func (m *memStore) FetchRanked(_ context.Context, ownerID string) ([]models.RankedRecommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := append([]models.Recommendation(nil), m.recs[ownerID]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	out := make([]models.RankedRecommendation, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RankedRecommendation{Recommendation: r})
	}
	return out, nil
}

func (m *memStore) stored(ownerID string) []models.Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Recommendation(nil), m.recs[ownerID]...)
}

type lockedLocker struct{}

func (lockedLocker) Acquire(context.Context, string) (store.ReleaseFunc, error) {
	return nil, store.ErrLocked
}

type countingLocker struct {
	acquired, released int
}

func (l *countingLocker) Acquire(context.Context, string) (store.ReleaseFunc, error) {
	l.acquired++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}
