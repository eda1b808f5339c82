package handler

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"

	"github.com/consearch/backend/internal/application/ingest"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/infrastructure/websocket"
	"github.com/consearch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// IndexHandler 索引与监听处理器
type IndexHandler struct {
	ingestService *ingest.Service
	hub           *websocket.Hub
	logger        *slog.Logger

	// running 是否有全量扫描在运行，同一时刻只允许一个
	running atomic.Bool
}

// NewIndexHandler 创建索引处理器
func NewIndexHandler(ingestService *ingest.Service, hub *websocket.Hub) *IndexHandler {
	return &IndexHandler{
		ingestService: ingestService,
		hub:           hub,
		logger:        log.NewModuleLogger("http", "index_handler"),
	}
}

// FullIndex 后台触发全量扫描，进度通过 WebSocket 推送
// POST /api/v1/index/full
func (h *IndexHandler) FullIndex(c *gin.Context) {
	if !h.running.CompareAndSwap(false, true) {
		response.Error(c, http.StatusConflict, 2003, "full index already running")
		return
	}

	go func() {
		defer h.running.Store(false)

		report, err := h.ingestService.IndexAllWithProgress(func(processed, total int, filePath string) {
			h.hub.BroadcastProgress(websocket.TopicIndexProgress, processed, total, filepath.Base(filePath))
		})
		if err != nil {
			h.logger.Error("Full index failed", "error", err)
			return
		}
		h.logger.Info("Full index finished",
			"files_scanned", report.FilesScanned,
			"records_inserted", report.RecordsInserted,
		)
	}()

	response.Success(c, gin.H{"started": true})
}

// StartWatching 启动文件监听
// POST /api/v1/watch/start
func (h *IndexHandler) StartWatching(c *gin.Context) {
	if err := h.ingestService.StartWatching(); err != nil {
		h.logger.Error("Failed to start watching", "error", err)
		response.ErrorWithDetail(c, http.StatusInternalServerError, 2002, "failed to start watching", err.Error())
		return
	}
	response.Success(c, gin.H{"watching": true})
}

// StopWatching 停止文件监听
// POST /api/v1/watch/stop
func (h *IndexHandler) StopWatching(c *gin.Context) {
	h.ingestService.StopWatching()
	response.Success(c, gin.H{"watching": false})
}
