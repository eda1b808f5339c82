package handler

import "github.com/google/wire"

// ProviderSet HTTP 处理器的依赖提供者集合
var ProviderSet = wire.NewSet(
	NewSearchHandler,
	NewIndexHandler,
	NewEmbeddingHandler,
	NewStatsHandler,
	NewWSHandler,
)
