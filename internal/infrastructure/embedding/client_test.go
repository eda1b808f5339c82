package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient 构造指向测试服务器的客户端
func newTestClient(baseURL string) *Client {
	return NewClient(&config.EmbeddingConfig{
		BaseURL:        baseURL,
		Model:          "test-model",
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		MinTextChars:   1,
		MaxTextChars:   100,
	})
}

func TestGenerateEmbedding_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Input, 1)

		json.NewEncoder(w).Encode(embedResponse{
			Model:      "test-model",
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	vec, err := client.GenerateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestGenerateEmbedding_LengthBounds(t *testing.T) {
	// 本地校验不应发起任何网络请求
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client := NewClient(&config.EmbeddingConfig{
		BaseURL:        server.URL,
		Model:          "test-model",
		RequestTimeout: time.Second,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		MinTextChars:   5,
		MaxTextChars:   10,
	})
	defer client.Close()

	_, err := client.GenerateEmbedding(context.Background(), "hi")
	assert.ErrorContains(t, err, "too short")

	_, err = client.GenerateEmbedding(context.Background(), "this text is way too long")
	assert.ErrorContains(t, err, "too long")

	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerateEmbedding_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1, 0}}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	vec, err := client.GenerateEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateEmbedding_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	_, err := client.GenerateEmbedding(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateEmbedding_EmptyResponseNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	// 空向量响应是配置错误，只发一次请求
	_, err := client.GenerateEmbedding(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrProviderMisconfigured)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateEmbedding_UnreachableProvider(t *testing.T) {
	client := NewClient(&config.EmbeddingConfig{
		BaseURL:        "http://127.0.0.1:1",
		Model:          "test-model",
		RequestTimeout: 100 * time.Millisecond,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		MinTextChars:   1,
		MaxTextChars:   100,
	})
	defer client.Close()

	_, err := client.GenerateEmbedding(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestIsAvailable_ModelInstalled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"other"},{"name":"test-model:latest"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	assert.True(t, client.IsAvailable(context.Background()))
}

func TestIsAvailable_ModelMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"some-other-model"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	defer client.Close()

	assert.False(t, client.IsAvailable(context.Background()))
}

func TestIsAvailable_ProviderDown(t *testing.T) {
	client := NewClient(&config.EmbeddingConfig{
		BaseURL:        "http://127.0.0.1:1",
		Model:          "test-model",
		RequestTimeout: 100 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		MinTextChars:   1,
		MaxTextChars:   100,
	})
	defer client.Close()

	// 探测失败降级为不可用，不报错
	assert.False(t, client.IsAvailable(context.Background()))
}
