package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	appembedding "github.com/consearch/backend/internal/application/embedding"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/infrastructure/websocket"
	"github.com/consearch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// EmbeddingHandler embedding 处理器
type EmbeddingHandler struct {
	coordinator *appembedding.Coordinator
	hub         *websocket.Hub
	logger      *slog.Logger

	// running 是否有补齐任务在运行，同一时刻只允许一个
	running atomic.Bool
}

// NewEmbeddingHandler 创建 embedding 处理器
func NewEmbeddingHandler(coordinator *appembedding.Coordinator, hub *websocket.Hub) *EmbeddingHandler {
	return &EmbeddingHandler{
		coordinator: coordinator,
		hub:         hub,
		logger:      log.NewModuleLogger("http", "embedding_handler"),
	}
}

// GenerateMissing 后台补齐所有缺失的 embedding，进度通过 WebSocket 推送
// POST /api/v1/embeddings/generate
func (h *EmbeddingHandler) GenerateMissing(c *gin.Context) {
	if !h.coordinator.IsProviderAvailable(c.Request.Context()) {
		response.Error(c, http.StatusServiceUnavailable, 3001,
			"embedding provider unavailable, start the service or pull the configured model")
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		response.Error(c, http.StatusConflict, 3002, "embedding backfill already running")
		return
	}

	go func() {
		defer h.running.Store(false)

		succeeded, failed, err := h.coordinator.GenerateMissing(context.Background(), func(current, total int) {
			h.hub.BroadcastProgress(websocket.TopicEmbeddingProgress, current, total, "")
		})
		if err != nil {
			h.logger.Error("Embedding backfill aborted", "error", err)
			return
		}
		h.logger.Info("Embedding backfill finished", "succeeded", succeeded, "failed", failed)
	}()

	response.Success(c, gin.H{"started": true})
}

// Coverage embedding 覆盖率统计
// GET /api/v1/embeddings/coverage
func (h *EmbeddingHandler) Coverage(c *gin.Context) {
	stats, err := h.coordinator.CoverageStats()
	if err != nil {
		h.logger.Error("Failed to compute coverage", "error", err)
		response.Error(c, http.StatusInternalServerError, 3003, "failed to compute coverage")
		return
	}

	response.Success(c, gin.H{
		"total_messages":    stats.TotalMessages,
		"embedded_messages": stats.EmbeddedMessages,
		"model":             stats.Model,
		"coverage":          stats.Coverage(),
	})
}
