//go:build wireinject
// +build wireinject

package wire

import (
	appembedding "github.com/consearch/backend/internal/application/embedding"
	"github.com/consearch/backend/internal/application/ingest"
	appsearch "github.com/consearch/backend/internal/application/search"
	"github.com/consearch/backend/internal/application/stats"
	"github.com/consearch/backend/internal/infrastructure/config"
	infraembedding "github.com/consearch/backend/internal/infrastructure/embedding"
	"github.com/consearch/backend/internal/infrastructure/storage"
	"github.com/consearch/backend/internal/infrastructure/watcher"
	"github.com/consearch/backend/internal/infrastructure/websocket"
	httpserver "github.com/consearch/backend/internal/interfaces/http"
	"github.com/google/wire"
)

// InitializeApp 初始化完整应用
func InitializeApp() (*App, error) {
	wire.Build(
		config.ProviderSet,
		storage.ProviderSet,
		infraembedding.ProviderSet,
		watcher.ProviderSet,
		websocket.NewHub,
		appembedding.ProviderSet,
		ingest.ProviderSet,
		appsearch.ProviderSet,
		stats.ProviderSet,
		httpserver.ProviderSet,
		NewApp,
	)
	return nil, nil
}
