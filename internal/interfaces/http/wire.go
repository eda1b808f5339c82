package http

import (
	"github.com/consearch/backend/internal/interfaces/http/handler"
	"github.com/google/wire"
)

// ProviderSet HTTP 服务的依赖提供者集合
var ProviderSet = wire.NewSet(
	handler.ProviderSet,
	NewServer,
)
