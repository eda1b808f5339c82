package storage

import "github.com/google/wire"

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,               // 提供数据库连接
	NewMessageRepository,    // 消息仓储
	NewEmbeddingRepository,  // embedding 仓储
	NewFileOffsetRepository, // 文件读取进度仓储
)
