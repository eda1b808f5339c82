package embedding

import (
	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/consearch/backend/internal/infrastructure/config"
	infraembedding "github.com/consearch/backend/internal/infrastructure/embedding"
	"github.com/google/wire"
)

// ProvideCoordinator 提供协调器实例
func ProvideCoordinator(
	client *infraembedding.Client,
	embeddingRepo conversation.EmbeddingRepository,
	messageRepo conversation.MessageRepository,
	cfg *config.EmbeddingConfig,
) *Coordinator {
	return NewCoordinator(client, embeddingRepo, messageRepo, cfg)
}

// ProviderSet embedding 协调器的依赖提供者集合
var ProviderSet = wire.NewSet(ProvideCoordinator)
