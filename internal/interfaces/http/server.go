// Package http 提供对外的 HTTP 服务
package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/interfaces/http/handler"
	"github.com/consearch/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverConfig *config.ServerConfig,
	searchHandler *handler.SearchHandler,
	indexHandler *handler.IndexHandler,
	embeddingHandler *handler.EmbeddingHandler,
	statsHandler *handler.StatsHandler,
	wsHandler *handler.WSHandler,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.RequestID())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 检索相关路由
		api.POST("/search", searchHandler.Search)
		api.GET("/messages/:id/similar", searchHandler.FindSimilar)

		// 索引与监听相关路由
		api.POST("/index/full", indexHandler.FullIndex)
		api.POST("/watch/start", indexHandler.StartWatching)
		api.POST("/watch/stop", indexHandler.StopWatching)

		// embedding 相关路由
		api.POST("/embeddings/generate", embeddingHandler.GenerateMissing)
		api.GET("/embeddings/coverage", embeddingHandler.Coverage)

		// 状态与统计
		api.GET("/status", statsHandler.Status)
		api.GET("/stats/tokens", statsHandler.TokenUsage)
	}

	// 进度推送
	router.GET("/ws", wsHandler.Subscribe)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &HTTPServer{
		router:   router,
		httpPort: serverConfig.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
