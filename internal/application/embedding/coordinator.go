// Package embedding 协调 embedding 的生成、持久化和复用
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
	vectormath "github.com/consearch/backend/internal/domain/embedding"
	"github.com/consearch/backend/internal/domain/search"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/log"
)

// Provider 向量生成提供方
type Provider interface {
	// GenerateEmbedding 将文本转换为向量
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// IsAvailable 非抛错的可用性探测
	IsAvailable(ctx context.Context) bool
	// Model 当前模型标识
	Model() string
}

// ProgressFunc 批量生成的进度回调，在每条记录处理后调用
type ProgressFunc func(current, total int)

// Coordinator Embedding 协调器
// 将提供方的失败隔离在本层：上游拿到的是明确的错误值而不是异常
type Coordinator struct {
	provider      Provider
	embeddingRepo conversation.EmbeddingRepository
	messageRepo   conversation.MessageRepository

	minContentChars int
	batchSize       int
	batchPause      time.Duration

	logger *slog.Logger
}

// NewCoordinator 创建协调器
func NewCoordinator(
	provider Provider,
	embeddingRepo conversation.EmbeddingRepository,
	messageRepo conversation.MessageRepository,
	cfg *config.EmbeddingConfig,
) *Coordinator {
	return &Coordinator{
		provider:        provider,
		embeddingRepo:   embeddingRepo,
		messageRepo:     messageRepo,
		minContentChars: cfg.MinContentChars,
		batchSize:       cfg.BatchSize,
		batchPause:      cfg.BatchPause,
		logger:          log.NewModuleLogger("embedding", "coordinator"),
	}
}

// Model 当前激活的模型标识
func (c *Coordinator) Model() string {
	return c.provider.Model()
}

// GenerateAndStore 为一条消息生成并持久化 embedding
// 空白或过短的内容直接视为成功（向量化近空文本无意义）
// 已有 embedding 时是廉价的幂等 no-op，不触发外部调用
func (c *Coordinator) GenerateAndStore(ctx context.Context, messageID int64, content string) error {
	if !c.isEmbeddable(content) {
		return nil
	}

	exists, err := c.embeddingRepo.HasEmbedding(messageID, c.provider.Model())
	if err != nil {
		return fmt.Errorf("failed to check existing embedding: %w", err)
	}
	if exists {
		return nil
	}

	vector, err := c.provider.GenerateEmbedding(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to embed message %d: %w", messageID, err)
	}

	// 持久化前统一归一化，余弦相似度计算可以直接用点积
	vector = vectormath.Normalize(vector)

	if err := c.embeddingRepo.SaveEmbedding(messageID, c.provider.Model(), vector); err != nil {
		return fmt.Errorf("failed to save embedding for message %d: %w", messageID, err)
	}
	return nil
}

// GenerateMissing 为所有缺少当前模型 embedding 的消息补齐向量
// 单条失败跳过并计数，不中止整个批次；每处理完固定批量后节流暂停
func (c *Coordinator) GenerateMissing(ctx context.Context, progress ProgressFunc) (succeeded, failed int, err error) {
	messages, err := c.messageRepo.ListWithoutEmbedding(c.provider.Model())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list messages without embedding: %w", err)
	}

	total := len(messages)
	c.logger.Info("Backfilling embeddings", "total", total, "model", c.provider.Model())

	generated := 0
	for i, msg := range messages {
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}

		if err := c.GenerateAndStore(ctx, msg.ID, msg.Content); err != nil {
			c.logger.Warn("Failed to embed message", "message_id", msg.ID, "error", err)
			failed++
		} else {
			succeeded++
		}

		if progress != nil {
			progress(i+1, total)
		}

		// 节流：提供方没有硬性限流，主动让出间隔
		generated++
		if c.batchSize > 0 && generated%c.batchSize == 0 && i < total-1 {
			select {
			case <-time.After(c.batchPause):
			case <-ctx.Done():
				return succeeded, failed, ctx.Err()
			}
		}
	}

	c.logger.Info("Backfill finished", "succeeded", succeeded, "failed", failed)
	return succeeded, failed, nil
}

// GenerateQueryEmbedding 为查询串生成临时向量，不持久化
func (c *Coordinator) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	vector, err := c.provider.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vectormath.Normalize(vector), nil
}

// GetOrGenerate 取回消息已有的 embedding，缺失时按需生成
func (c *Coordinator) GetOrGenerate(ctx context.Context, messageID int64, content string) ([]float32, error) {
	vector, err := c.embeddingRepo.GetEmbedding(messageID, c.provider.Model())
	if err != nil {
		return nil, err
	}
	if vector != nil {
		return vector, nil
	}

	if err := c.GenerateAndStore(ctx, messageID, content); err != nil {
		return nil, err
	}
	return c.embeddingRepo.GetEmbedding(messageID, c.provider.Model())
}

// CoverageStats 当前模型的 embedding 覆盖统计
func (c *Coordinator) CoverageStats() (*search.CoverageStats, error) {
	total, err := c.messageRepo.CountMessages()
	if err != nil {
		return nil, err
	}
	embedded, err := c.embeddingRepo.CountEmbeddings(c.provider.Model())
	if err != nil {
		return nil, err
	}
	return &search.CoverageStats{
		TotalMessages:    total,
		EmbeddedMessages: embedded,
		Model:            c.provider.Model(),
	}, nil
}

// IsProviderAvailable 提供方是否可用
func (c *Coordinator) IsProviderAvailable(ctx context.Context) bool {
	return c.provider.IsAvailable(ctx)
}

// isEmbeddable 内容是否值得向量化
func (c *Coordinator) isEmbeddable(content string) bool {
	trimmed := strings.TrimSpace(content)
	return len([]rune(trimmed)) >= c.minContentChars
}
