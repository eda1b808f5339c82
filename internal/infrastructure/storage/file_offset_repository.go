package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
)

// 确保 FileOffsetRepositoryImpl 实现了接口
var _ conversation.FileOffsetRepository = (*FileOffsetRepositoryImpl)(nil)

// FileOffsetRepositoryImpl 文件读取进度仓库实现
type FileOffsetRepositoryImpl struct {
	db *sql.DB
}

// NewFileOffsetRepository 创建文件读取进度仓库实例
func NewFileOffsetRepository(db *sql.DB) conversation.FileOffsetRepository {
	return &FileOffsetRepositoryImpl{db: db}
}

// GetCommittedLines 已提交的行数，从未见过的文件返回 0
func (r *FileOffsetRepositoryImpl) GetCommittedLines(filePath string) (int, error) {
	var lines int
	err := r.db.QueryRow(
		`SELECT committed_lines FROM file_offsets WHERE file_path = ?`,
		filePath,
	).Scan(&lines)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get file offset: %w", err)
	}
	return lines, nil
}

// SetCommittedLines 更新已提交的行数
func (r *FileOffsetRepositoryImpl) SetCommittedLines(filePath string, lines int) error {
	_, err := r.db.Exec(`
		INSERT OR REPLACE INTO file_offsets (file_path, committed_lines, updated_at)
		VALUES (?, ?, ?)`,
		filePath, lines, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set file offset: %w", err)
	}
	return nil
}
