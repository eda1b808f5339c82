package handler

import (
	"log/slog"
	"net/http"

	appembedding "github.com/consearch/backend/internal/application/embedding"
	"github.com/consearch/backend/internal/application/ingest"
	"github.com/consearch/backend/internal/application/stats"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// StatsHandler 统计与状态处理器
type StatsHandler struct {
	statsService  *stats.Service
	coordinator   *appembedding.Coordinator
	ingestService *ingest.Service
	logger        *slog.Logger
}

// NewStatsHandler 创建统计处理器
func NewStatsHandler(
	statsService *stats.Service,
	coordinator *appembedding.Coordinator,
	ingestService *ingest.Service,
) *StatsHandler {
	return &StatsHandler{
		statsService:  statsService,
		coordinator:   coordinator,
		ingestService: ingestService,
		logger:        log.NewModuleLogger("http", "stats_handler"),
	}
}

// Status 系统状态总览
// GET /api/v1/status
func (h *StatsHandler) Status(c *gin.Context) {
	overview, err := h.statsService.Overview()
	if err != nil {
		h.logger.Error("Failed to load overview", "error", err)
		response.Error(c, http.StatusInternalServerError, 4001, "failed to load overview")
		return
	}

	coverage, err := h.coordinator.CoverageStats()
	if err != nil {
		h.logger.Error("Failed to load coverage", "error", err)
		response.Error(c, http.StatusInternalServerError, 4001, "failed to load coverage")
		return
	}

	response.Success(c, gin.H{
		"total_messages":     overview.TotalMessages,
		"total_sessions":     overview.TotalSessions,
		"embedded_messages":  coverage.EmbeddedMessages,
		"embedding_coverage": coverage.Coverage(),
		"embedding_model":    coverage.Model,
		"provider_available": h.coordinator.IsProviderAvailable(c.Request.Context()),
		"watching":           h.ingestService.IsWatching(),
	})
}

// TokenUsage Token 用量统计
// GET /api/v1/stats/tokens
func (h *StatsHandler) TokenUsage(c *gin.Context) {
	usage, err := h.statsService.TokenUsage()
	if err != nil {
		h.logger.Error("Failed to compute token usage", "error", err)
		response.Error(c, http.StatusInternalServerError, 4002, "failed to compute token usage")
		return
	}
	response.Success(c, usage)
}
