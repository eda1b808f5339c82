package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	appembedding "github.com/consearch/backend/internal/application/embedding"
	appsearch "github.com/consearch/backend/internal/application/search"
	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineProvider 始终不可用的提供方：检索应降级到关键词
type offlineProvider struct{}

func (offlineProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, context.DeadlineExceeded
}

func (offlineProvider) IsAvailable(ctx context.Context) bool { return false }

func (offlineProvider) Model() string { return "test-model" }

func newSearchTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	messageRepo := storage.NewMessageRepository(db)
	embeddingRepo := storage.NewEmbeddingRepository(db)

	_, _, err = messageRepo.InsertMessage(&conversation.Message{
		SessionID:   "s1",
		LineIndex:   0,
		ProjectPath: "/Users/me/project",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Role:        conversation.RoleUser,
		Content:     "Learn Kotlin basics",
	})
	require.NoError(t, err)

	coordinator := appembedding.NewCoordinator(offlineProvider{}, embeddingRepo, messageRepo,
		&config.EmbeddingConfig{MinContentChars: 4, BatchSize: 10})
	engine := appsearch.NewEngine(messageRepo, embeddingRepo, coordinator, &config.SearchConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		CandidateLimit: 50,
		RRFConstant:    60,
		SnippetWindow:  80,
	})

	h := NewSearchHandler(engine)
	router := gin.New()
	router.POST("/api/v1/search", h.Search)
	router.GET("/api/v1/messages/:id/similar", h.FindSimilar)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func TestSearchHandler_Search(t *testing.T) {
	router := newSearchTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/search", SearchRequest{
		Query: "kotlin",
		Mode:  "keyword",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, int(body["code"].(float64)))

	data := body["data"].(map[string]interface{})
	assert.Equal(t, 1, int(data["count"].(float64)))
	results := data["results"].([]interface{})
	first := results[0].(map[string]interface{})
	assert.Contains(t, first["snippet"].(string), "Kotlin")
}

func TestSearchHandler_HybridDegradesWhenProviderDown(t *testing.T) {
	router := newSearchTestRouter(t)

	// 提供方不可用：HYBRID 仍返回关键词结果，而不是错误
	w, body := doJSON(t, router, http.MethodPost, "/api/v1/search", SearchRequest{
		Query: "kotlin",
		Mode:  "hybrid",
	})

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 1, int(data["count"].(float64)))
}

func TestSearchHandler_InvalidMode(t *testing.T) {
	router := newSearchTestRouter(t)

	w, body := doJSON(t, router, http.MethodPost, "/api/v1/search", SearchRequest{
		Query: "kotlin",
		Mode:  "fuzzy",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEqual(t, 0, int(body["code"].(float64)))
}

func TestSearchHandler_InvalidFilter(t *testing.T) {
	router := newSearchTestRouter(t)

	w, _ := doJSON(t, router, http.MethodPost, "/api/v1/search", SearchRequest{
		Query:   "kotlin",
		Filters: &FilterRequest{After: "not-a-time"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/v1/search", SearchRequest{
		Query:   "kotlin",
		Filters: &FilterRequest{Role: "robot"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandler_FindSimilar(t *testing.T) {
	router := newSearchTestRouter(t)

	// 提供方不可用时相似检索降级为空结果
	w, body := doJSON(t, router, http.MethodGet, "/api/v1/messages/1/similar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 0, int(data["count"].(float64)))

	// 非法 id
	w, _ = doJSON(t, router, http.MethodGet, "/api/v1/messages/abc/similar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
