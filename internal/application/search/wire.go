package search

import (
	"github.com/google/wire"
)

// ProviderSet 检索引擎的依赖提供者集合
var ProviderSet = wire.NewSet(NewEngine)
