package wire

import (
	"database/sql"
	"errors"
	"net/http"

	"log/slog"

	"github.com/consearch/backend/internal/application/ingest"
	"github.com/consearch/backend/internal/domain/events"
	infraembedding "github.com/consearch/backend/internal/infrastructure/embedding"
	applog "github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/infrastructure/websocket"
	httpserver "github.com/consearch/backend/internal/interfaces/http"
)

// App 应用主结构，组合所有服务
type App struct {
	httpServer      *httpserver.HTTPServer
	ingestService   *ingest.Service
	embeddingClient *infraembedding.Client
	wsHub           *websocket.Hub
	eventBus        events.EventBus
	db              *sql.DB
	logger          *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *httpserver.HTTPServer,
	ingestService *ingest.Service,
	embeddingClient *infraembedding.Client,
	wsHub *websocket.Hub,
	eventBus events.EventBus,
	db *sql.DB,
) *App {
	return &App{
		httpServer:      httpServer,
		ingestService:   ingestService,
		embeddingClient: embeddingClient,
		wsHub:           wsHub,
		eventBus:        eventBus,
		db:              db,
		logger:          applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting consearch backend")

	// 进度推送 Hub
	a.wsHub.Start()

	// 启动时异步执行一次全量扫描，把离线期间的新会话补进索引；
	// 上次扫描距今太近时跳过，增量由文件监听覆盖
	if a.ingestService.NeedsFullScan() {
		go func() {
			report, err := a.ingestService.IndexAllConversations()
			if err != nil {
				a.logger.Error("Initial full scan failed", "error", err)
				return
			}
			a.logger.Info("Initial full scan finished",
				"files_scanned", report.FilesScanned,
				"records_inserted", report.RecordsInserted,
			)
		}()
	} else {
		a.logger.Info("Recent full scan found, startup scan skipped")
	}

	// 开启持续监听
	if err := a.ingestService.StartWatching(); err != nil {
		// 监听起不来只影响增量同步，服务本身仍可用
		a.logger.Error("Failed to start file watching", "error", err)
	}

	// HTTP 服务在后台运行
	go func() {
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server exited", "error", err)
		}
	}()

	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping consearch backend")

	a.ingestService.StopWatching()
	a.eventBus.Close()

	if err := a.httpServer.Stop(); err != nil {
		a.logger.Warn("HTTP server shutdown error", "error", err)
	}

	a.embeddingClient.Close()

	if err := a.db.Close(); err != nil {
		a.logger.Warn("Database close error", "error", err)
	}
	return nil
}
