package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/recommend"
	"github.com/yishak-cs/stylematch/internal/services"
	"github.com/yishak-cs/stylematch/internal/store"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

// APIHandler handles all API requests
type APIHandler struct {
	recommendationService *services.RecommendationService
	health                HealthFunc
	log                   *logger.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(recommendationService *services.RecommendationService, health HealthFunc, log *logger.Logger) *APIHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &APIHandler{
		recommendationService: recommendationService,
		health:                health,
		log:                   log,
	}
}

// SetupRoutes configures all API routes. throttle runs in front of the
// routes that score the catalog.
func (h *APIHandler) SetupRoutes(router *gin.Engine, throttle ...gin.HandlerFunc) {
	scored := func(handler gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, throttle...), handler)
	}

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/questions", h.GetQuestions)
		api.GET("/catalog", h.GetCatalog)

		api.PUT("/answers/:ownerId", h.SaveAnswers)
		api.GET("/answers/:ownerId/profile", h.GetProfile)

		api.POST("/recommendations/preview", scored(h.PreviewRecommendations)...)
		api.POST("/recommendations/:ownerId/refresh", scored(h.RefreshRecommendations)...)
		api.GET("/recommendations/:ownerId", h.GetRecommendations)
	}
}

type answersRequest struct {
	Answers []models.Answer `json:"answers" binding:"dive"`
}

// Health checks store connectivity
func (h *APIHandler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetQuestions lists the quiz questions in display order
func (h *APIHandler) GetQuestions(c *gin.Context) {
	questions, err := h.recommendationService.Questions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if questions == nil {
		questions = []models.Question{}
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}

// GetCatalog lists the active catalog
func (h *APIHandler) GetCatalog(c *gin.Context) {
	items, err := h.recommendationService.Catalog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if items == nil {
		items = []models.CatalogItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// SaveAnswers replaces the answer set of an owner
func (h *APIHandler) SaveAnswers(c *gin.Context) {
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ownerID := c.Param("ownerId")
	if err := h.recommendationService.SaveAnswers(c.Request.Context(), ownerID, req.Answers); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "saved": len(req.Answers)})
}

// GetProfile returns the aggregated preference profile of an owner
func (h *APIHandler) GetProfile(c *gin.Context) {
	ownerID := c.Param("ownerId")
	profile, err := h.recommendationService.Profile(c.Request.Context(), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "profile": profile})
}

// RefreshRecommendations recomputes and stores the recommendations of an owner
func (h *APIHandler) RefreshRecommendations(c *gin.Context) {
	k, ok := h.parseK(c)
	if !ok {
		return
	}

	ownerID := c.Param("ownerId")
	count, err := h.recommendationService.Generate(c.Request.Context(), ownerID, k)
	if errors.Is(err, services.ErrEmptyCatalog) {
		c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "count": 0, "status": "nothing_available"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "count": count, "status": "ok"})
}

// GetRecommendations returns the stored recommendations of an owner
func (h *APIHandler) GetRecommendations(c *gin.Context) {
	ownerID := c.Param("ownerId")
	recs, err := h.recommendationService.GetRecommendations(c.Request.Context(), ownerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []models.RankedRecommendation{}
	}
	c.JSON(http.StatusOK, gin.H{"owner_id": ownerID, "recommendations": recs})
}

// PreviewRecommendations ranks the catalog against answers in the body
// without storing anything
func (h *APIHandler) PreviewRecommendations(c *gin.Context) {
	k, ok := h.parseK(c)
	if !ok {
		return
	}

	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	items, profile, err := h.recommendationService.Preview(c.Request.Context(), req.Answers, k)
	if errors.Is(err, services.ErrEmptyCatalog) {
		c.JSON(http.StatusOK, gin.H{"recommendations": []recommend.ScoredItem{}, "profile": profile, "status": "nothing_available"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": items, "profile": profile, "status": "ok"})
}

func (h *APIHandler) parseK(c *gin.Context) (int, bool) {
	raw := c.Query("k")
	if raw == "" {
		return 0, true
	}
	k, err := strconv.Atoi(raw)
	if err != nil || k < 0 {
		h.badRequest(c, "Invalid k")
		return 0, false
	}
	return k, true
}

type errorBody struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func (h *APIHandler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Message: msg, Code: "invalid_request"}})
}

// fail maps service and store errors onto HTTP statuses.
func (h *APIHandler) fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": body})
}

func classify(err error) (int, errorBody) {
	var partial *services.RefreshPartialFailureError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Message: err.Error(), Code: "invalid_request"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Message: "No answers found", Code: "not_found"}
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, errorBody{Message: "Access denied", Code: "access_denied"}
	case errors.Is(err, services.ErrRefreshInProgress):
		return http.StatusConflict, errorBody{Message: "A refresh is already running", Code: "refresh_in_progress", Retryable: true}
	case errors.As(err, &partial):
		return http.StatusServiceUnavailable, errorBody{Message: "Recommendations were cleared but not rewritten, retry the refresh", Code: "refresh_partial_failure", Retryable: true}
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorBody{Message: "Data temporarily unavailable", Code: "data_unavailable", Retryable: true}
	}
	return http.StatusInternalServerError, errorBody{Message: "Internal error", Code: "internal"}
}

// NotFound answers unknown routes with the standard error envelope.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": errorBody{Message: "endpoint not found", Code: "not_found"}})
}
