package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/services"
	"github.com/yishak-cs/stylematch/internal/store"
)

type fakeBackend struct {
	answers   map[string][]models.Answer
	questions []models.Question
	catalog   []models.CatalogItem
	recs      map[string][]models.Recommendation

	fetchErr  error
	insertErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		answers: map[string][]models.Answer{},
		recs:    map[string][]models.Recommendation{},
		questions: []models.Question{
			{ID: "style", Prompt: "Pick a style", Type: models.QuestionSingle, Category: "style", Options: []string{"minimal", "street"}, OrderIndex: 1},
			{ID: "budget", Prompt: "Budget", Type: models.QuestionScale, Category: "budget", OrderIndex: 2},
		},
		catalog: []models.CatalogItem{
			{ID: "p1", Title: "Minimal tee", Tags: []string{"minimal"}, Price: 20000, Active: true},
			{ID: "p2", Title: "Street hoodie", Tags: []string{"street"}, Price: 60000, Active: true},
		},
	}
}

func (f *fakeBackend) FetchAnswers(_ context.Context, ownerID string) ([]models.Answer, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	a, ok := f.answers[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeBackend) ReplaceAnswers(_ context.Context, ownerID string, answers []models.Answer) error {
	f.answers[ownerID] = answers
	return nil
}

func (f *fakeBackend) FetchQuestions(context.Context) ([]models.Question, error) {
	return f.questions, nil
}

func (f *fakeBackend) FetchActiveCatalog(context.Context) ([]models.CatalogItem, error) {
	return f.catalog, nil
}

func (f *fakeBackend) DeleteForOwner(_ context.Context, ownerID string) error {
	delete(f.recs, ownerID)
	return nil
}

func (f *fakeBackend) Insert(_ context.Context, rows []models.Recommendation) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, r := range rows {
		f.recs[r.OwnerID] = append(f.recs[r.OwnerID], r)
	}
	return nil
}

func (f *fakeBackend) FetchRanked(_ context.Context, ownerID string) ([]models.RankedRecommendation, error) {
	var out []models.RankedRecommendation
	for _, r := range f.recs[ownerID] {
		out = append(out, models.RankedRecommendation{Recommendation: r})
	}
	return out, nil
}

func setupRouter(backend *fakeBackend, health HealthFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewRecommendationService(services.Deps{
		Answers:         backend,
		Questions:       backend,
		Catalog:         backend,
		Recommendations: backend,
	}, services.Config{TopK: 10, MaxK: 20})

	router := gin.New()
	NewAPIHandler(svc, health, nil).SetupRoutes(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	return fmt.Sprint(e["code"])
}

func TestHealth(t *testing.T) {
	rec, _ := do(t, setupRouter(newFakeBackend(), nil), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := func(context.Context) error { return errors.New("down") }
	rec, body := do(t, setupRouter(newFakeBackend(), down), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestQuestionsAndCatalog(t *testing.T) {
	router := setupRouter(newFakeBackend(), nil)

	rec, body := do(t, router, http.MethodGet, "/api/questions", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["questions"], 2)

	rec, body = do(t, router, http.MethodGet, "/api/catalog", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
}

func TestAnswersRefreshAndRead(t *testing.T) {
	backend := newFakeBackend()
	router := setupRouter(backend, nil)

	rec, _ := do(t, router, http.MethodPut, "/api/answers/u1",
		`{"answers":[{"question_id":"style","value":"street"},{"question_id":"budget","value":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, router, http.MethodGet, "/api/answers/u1/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := body["profile"].(map[string]any)
	assert.Equal(t, []any{"street"}, profile["styles"])

	rec, body = do(t, router, http.MethodPost, "/api/recommendations/u1/refresh?k=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "ok", body["status"])

	rec, body = do(t, router, http.MethodGet, "/api/recommendations/u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	recs := body["recommendations"].([]any)
	require.Len(t, recs, 1)
	first := recs[0].(map[string]any)
	assert.Equal(t, "p2", first["product_id"])
	assert.Equal(t, "street style", first["reason"])
}

func TestRefresh_EmptyCatalog(t *testing.T) {
	backend := newFakeBackend()
	backend.catalog = nil
	backend.answers["u1"] = []models.Answer{{QuestionID: "style", Value: json.RawMessage(`"minimal"`)}}

	rec, body := do(t, setupRouter(backend, nil), http.MethodPost, "/api/recommendations/u1/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nothing_available", body["status"])
}

func TestRefresh_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(b *fakeBackend)
		status int
		code   string
	}{
		{
			name:   "unknown owner",
			setup:  func(*fakeBackend) {},
			status: http.StatusNotFound,
			code:   "not_found",
		},
		{
			name:   "store unavailable",
			setup:  func(b *fakeBackend) { b.fetchErr = store.Unavailable("fetch answers", errors.New("eof")) },
			status: http.StatusServiceUnavailable,
			code:   "data_unavailable",
		},
		{
			name:   "access denied",
			setup:  func(b *fakeBackend) { b.fetchErr = store.ErrAccessDenied },
			status: http.StatusForbidden,
			code:   "access_denied",
		},
		{
			name: "partial failure",
			setup: func(b *fakeBackend) {
				b.answers["u1"] = []models.Answer{{QuestionID: "style", Value: json.RawMessage(`"minimal"`)}}
				b.insertErr = errors.New("write failed")
			},
			status: http.StatusServiceUnavailable,
			code:   "refresh_partial_failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			tt.setup(backend)

			rec, body := do(t, setupRouter(backend, nil), http.MethodPost, "/api/recommendations/u1/refresh", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, body))
		})
	}
}

func TestPreview(t *testing.T) {
	router := setupRouter(newFakeBackend(), nil)

	rec, body := do(t, router, http.MethodPost, "/api/recommendations/preview?k=1",
		`{"answers":[{"question_id":"style","value":"minimal"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["recommendations"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].(map[string]any)["item_id"])
}

func TestBadRequests(t *testing.T) {
	router := setupRouter(newFakeBackend(), nil)

	rec, body := do(t, router, http.MethodPost, "/api/recommendations/u1/refresh?k=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, body))

	rec, _ = do(t, router, http.MethodPut, "/api/answers/u1", `{"answers":[{"value":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, router, http.MethodPut, "/api/answers/u1",
		`{"answers":[{"question_id":"a","value":"x"},{"question_id":"a","value":"y"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThrottleOnlyGuardsScoringRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := newFakeBackend()
	svc := services.NewRecommendationService(services.Deps{
		Answers:         backend,
		Questions:       backend,
		Catalog:         backend,
		Recommendations: backend,
	}, services.Config{})

	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusTooManyRequests) }
	router := gin.New()
	router.NoRoute(NotFound)
	NewAPIHandler(svc, nil, nil).SetupRoutes(router, deny)

	rec, _ := do(t, router, http.MethodPost, "/api/recommendations/u1/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec, _ = do(t, router, http.MethodPost, "/api/recommendations/preview", `{"answers":[]}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/catalog", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, router, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, body))
}
