package stats

import "github.com/google/wire"

// ProviderSet 统计服务的依赖提供者集合
var ProviderSet = wire.NewSet(NewService)
