package ingest

import (
	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/consearch/backend/internal/domain/events"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/watcher"
	"github.com/google/wire"
)

// ProvideService 提供摄取服务实例
func ProvideService(
	messageRepo conversation.MessageRepository,
	offsetRepo conversation.FileOffsetRepository,
	fileWatcher *watcher.FileWatcher,
	eventBus events.EventBus,
	scanMeta *watcher.ScanMetadata,
	claudeConfig *config.ClaudeConfig,
) *Service {
	return NewService(messageRepo, offsetRepo, fileWatcher, eventBus, scanMeta, claudeConfig.ResolveProjectsDir())
}

// ProviderSet 摄取服务的依赖提供者集合
var ProviderSet = wire.NewSet(ProvideService)
