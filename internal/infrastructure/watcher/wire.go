package watcher

import (
	"github.com/consearch/backend/internal/domain/events"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/google/wire"
)

// ProvideEventBus 提供事件总线实例
func ProvideEventBus() events.EventBus {
	return NewEventBus()
}

// ProvideFileWatcher 提供文件监听器实例
func ProvideFileWatcher(eventBus events.EventBus, claudeConfig *config.ClaudeConfig) *FileWatcher {
	cfg := DefaultWatchConfig(claudeConfig.ResolveProjectsDir())
	return NewFileWatcher(cfg, eventBus)
}

// ProviderSet watcher 基础设施的依赖提供者集合
var ProviderSet = wire.NewSet(
	ProvideEventBus,
	ProvideFileWatcher,
	NewScanMetadata,
)
