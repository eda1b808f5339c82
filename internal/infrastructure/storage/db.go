// Package storage 提供基于 SQLite 的持久化实现
// 主表与 FTS5 全文索引通过触发器同步维护，两者的行集永不偏离
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consearch/backend/internal/infrastructure/config"
	_ "modernc.org/sqlite"
)

// GetDBPath 获取数据库路径
// 默认 <数据目录>/consearch.db
func GetDBPath(cfg *config.DatabaseConfig) string {
	if cfg != nil && cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(config.GetDataDir(), "consearch.db")
}

// OpenDB 打开数据库连接并初始化表结构
func OpenDB(path string) (*sql.DB, error) {
	// 确保目录存在
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL 允许事件分发 goroutine 与查询并发读写，
	// busy_timeout 让写冲突等待而不是立刻报 SQLITE_BUSY，
	// 外键约束支撑级联删除。
	// busy_timeout 和 foreign_keys 是连接级设置，必须写在 DSN 里
	// 才能对连接池的每个连接生效
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// ProvideDB 提供数据库连接（wire）
func ProvideDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return OpenDB(GetDBPath(cfg))
}

// initSchema 初始化表结构
func initSchema(db *sql.DB) error {
	statements := []string{
		// 消息主表
		// UNIQUE(session_id, line_index) 保证同一行的重复插入是幂等的
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			line_index INTEGER NOT NULL,
			project_path TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_uses TEXT,
			file_paths TEXT,
			language TEXT,
			model TEXT,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(session_id, line_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_path)`,

		// 全文索引（外部内容表，rowid 对齐主表 id）
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			content, project_path, file_paths,
			content='messages', content_rowid='id'
		)`,

		// 触发器在每次插入/更新/删除时同步维护全文索引
		`CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content, project_path, file_paths)
			VALUES (new.id, new.content, new.project_path, new.file_paths);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, project_path, file_paths)
			VALUES ('delete', old.id, old.content, old.project_path, old.file_paths);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content, project_path, file_paths)
			VALUES ('delete', old.id, old.content, old.project_path, old.file_paths);
			INSERT INTO messages_fts(rowid, content, project_path, file_paths)
			VALUES (new.id, new.content, new.project_path, new.file_paths);
		END`,

		// embedding 表：每个 (message, model) 至多一条
		// 消息删除时级联删除 embedding，反向不成立
		`CREATE TABLE IF NOT EXISTS embeddings (
			message_id INTEGER NOT NULL,
			model TEXT NOT NULL,
			vector BLOB NOT NULL,
			dims INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (message_id, model),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		)`,

		// 文件读取进度表：增量解析只处理已提交行数之后的行
		`CREATE TABLE IF NOT EXISTS file_offsets (
			file_path TEXT PRIMARY KEY,
			committed_lines INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	return nil
}
