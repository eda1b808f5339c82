package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
	vectormath "github.com/consearch/backend/internal/domain/embedding"
)

// 确保 EmbeddingRepositoryImpl 实现了接口
var _ conversation.EmbeddingRepository = (*EmbeddingRepositoryImpl)(nil)

// EmbeddingRepositoryImpl embedding 仓库实现
// 向量以小端 float32 blob 存储，单条写入即事务，读方看不到部分写入
type EmbeddingRepositoryImpl struct {
	db *sql.DB
}

// NewEmbeddingRepository 创建 embedding 仓库实例
func NewEmbeddingRepository(db *sql.DB) conversation.EmbeddingRepository {
	return &EmbeddingRepositoryImpl{db: db}
}

// SaveEmbedding 保存（或整体替换）一条 embedding
func (r *EmbeddingRepositoryImpl) SaveEmbedding(messageID int64, model string, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("cannot save empty vector for message %d", messageID)
	}

	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO embeddings (message_id, model, vector, dims, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		messageID,
		model,
		vectormath.Encode(vector),
		len(vector),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	return nil
}

// GetEmbedding 查询单条 embedding，不存在返回 nil
func (r *EmbeddingRepositoryImpl) GetEmbedding(messageID int64, model string) ([]float32, error) {
	var blob []byte
	err := r.db.QueryRow(
		`SELECT vector FROM embeddings WHERE message_id = ? AND model = ?`,
		messageID, model,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	return vectormath.Decode(blob)
}

// HasEmbedding 检查是否已存在
func (r *EmbeddingRepositoryImpl) HasEmbedding(messageID int64, model string) (bool, error) {
	var one int
	err := r.db.QueryRow(
		`SELECT 1 FROM embeddings WHERE message_id = ? AND model = ?`,
		messageID, model,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListEmbeddings 遍历指定模型的全部 embedding
func (r *EmbeddingRepositoryImpl) ListEmbeddings(model string) ([]*conversation.StoredEmbedding, error) {
	rows, err := r.db.Query(
		`SELECT message_id, vector FROM embeddings WHERE model = ?`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []*conversation.StoredEmbedding
	for rows.Next() {
		var (
			messageID int64
			blob      []byte
		)
		if err := rows.Scan(&messageID, &blob); err != nil {
			return nil, err
		}

		vec, err := vectormath.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("corrupt vector for message %d: %w", messageID, err)
		}

		embeddings = append(embeddings, &conversation.StoredEmbedding{
			MessageID: messageID,
			Model:     model,
			Vector:    vec,
		})
	}
	return embeddings, rows.Err()
}

// CountEmbeddings 指定模型的 embedding 总数
func (r *EmbeddingRepositoryImpl) CountEmbeddings(model string) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM embeddings WHERE model = ?`, model).Scan(&count)
	return count, err
}
