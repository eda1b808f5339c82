package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
)

// 确保 MessageRepositoryImpl 实现了接口
var _ conversation.MessageRepository = (*MessageRepositoryImpl)(nil)

// MessageRepositoryImpl 消息仓库实现
type MessageRepositoryImpl struct {
	db *sql.DB
}

// NewMessageRepository 创建消息仓库实例
func NewMessageRepository(db *sql.DB) conversation.MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

// messageColumns SELECT 列清单，与 scanMessage 保持一致
const messageColumns = `id, session_id, line_index, project_path, timestamp, role, content,
	tool_uses, file_paths, language, model,
	input_tokens, output_tokens, cache_write_tokens, cache_read_tokens`

// InsertMessage 插入消息
// 同一 (session_id, line_index) 的重复插入被忽略，返回已存在记录的 ID
func (r *MessageRepositoryImpl) InsertMessage(msg *conversation.Message) (int64, bool, error) {
	toolUsesJSON, _ := json.Marshal(msg.ToolUses)
	filePathsJSON, _ := json.Marshal(msg.FilePaths)

	res, err := r.db.Exec(`
		INSERT OR IGNORE INTO messages (
			session_id, line_index, project_path, timestamp, role, content,
			tool_uses, file_paths, language, model,
			input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID,
		msg.LineIndex,
		msg.ProjectPath,
		msg.Timestamp.UnixMilli(),
		string(msg.Role),
		msg.Content,
		string(toolUsesJSON),
		string(filePathsJSON),
		msg.Language,
		msg.Model,
		msg.Usage.InputTokens,
		msg.Usage.OutputTokens,
		msg.Usage.CacheWriteTokens,
		msg.Usage.CacheReadTokens,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	if affected == 0 {
		// 已存在，查出原记录的主键
		var id int64
		err := r.db.QueryRow(
			`SELECT id FROM messages WHERE session_id = ? AND line_index = ?`,
			msg.SessionID, msg.LineIndex,
		).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to look up existing message: %w", err)
		}
		msg.ID = id
		return id, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	msg.ID = id
	return id, true, nil
}

// GetMessage 按主键查询
func (r *MessageRepositoryImpl) GetMessage(id int64) (*conversation.Message, error) {
	row := r.db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return msg, err
}

// SearchKeyword 全文检索
// 按 bm25 相关性排序（越小越相关），同分按时间倒序
func (r *MessageRepositoryImpl) SearchKeyword(query string, filters *conversation.SearchFilters, limit int) ([]*conversation.KeywordMatch, error) {
	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	where := []string{"messages_fts MATCH ?"}
	args := []interface{}{ftsQuery}
	appendFilterClauses(&where, &args, filters)
	args = append(args, limit)

	rows, err := r.db.Query(`
		SELECT `+prefixColumns("m", messageColumns)+`, bm25(messages_fts) AS rank
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY rank ASC, m.timestamp DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute keyword search: %w", err)
	}
	defer rows.Close()

	var matches []*conversation.KeywordMatch
	for rows.Next() {
		msg, rank, err := scanMessageWithRank(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, &conversation.KeywordMatch{Message: msg, Rank: rank})
	}
	return matches, rows.Err()
}

// ListByFilters 仅按过滤条件查询，按时间倒序
func (r *MessageRepositoryImpl) ListByFilters(filters *conversation.SearchFilters, limit int) ([]*conversation.Message, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	appendFilterClauses(&where, &args, filters)
	args = append(args, limit)

	rows, err := r.db.Query(`
		SELECT `+prefixColumns("m", messageColumns)+`
		FROM messages m
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY m.timestamp DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetMessagesByIDs 批量查询，保持入参顺序
func (r *MessageRepositoryImpl) GetMessagesByIDs(ids []int64) ([]*conversation.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(`
		SELECT `+messageColumns+`
		FROM messages WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages by ids: %w", err)
	}
	defer rows.Close()

	fetched, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*conversation.Message, len(fetched))
	for _, msg := range fetched {
		byID[msg.ID] = msg
	}

	ordered := make([]*conversation.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := byID[id]; ok {
			ordered = append(ordered, msg)
		}
	}
	return ordered, nil
}

// ListWithoutEmbedding 查询尚无指定模型 embedding 的消息
func (r *MessageRepositoryImpl) ListWithoutEmbedding(model string) ([]*conversation.Message, error) {
	rows, err := r.db.Query(`
		SELECT `+prefixColumns("m", messageColumns)+`
		FROM messages m
		LEFT JOIN embeddings e ON e.message_id = m.id AND e.model = ?
		WHERE e.message_id IS NULL
		ORDER BY m.id ASC`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages without embedding: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountMessages 消息总数
func (r *MessageRepositoryImpl) CountMessages() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// CountSessions 会话总数
func (r *MessageRepositoryImpl) CountSessions() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(DISTINCT session_id) FROM messages`).Scan(&count)
	return count, err
}

// SumUsage 所有消息的 Token 用量合计
func (r *MessageRepositoryImpl) SumUsage() (conversation.Usage, error) {
	var usage conversation.Usage
	err := r.db.QueryRow(`
		SELECT
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_write_tokens), 0),
			COALESCE(SUM(cache_read_tokens), 0)
		FROM messages`).Scan(
		&usage.InputTokens,
		&usage.OutputTokens,
		&usage.CacheWriteTokens,
		&usage.CacheReadTokens,
	)
	return usage, err
}

// ListContentWithoutUsage 查询没有任何 usage 计数的消息内容
// 用于 tiktoken 估算补齐统计
func (r *MessageRepositoryImpl) ListContentWithoutUsage() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT content FROM messages
		WHERE input_tokens = 0 AND output_tokens = 0
		  AND cache_write_tokens = 0 AND cache_read_tokens = 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

// buildFTSQuery 将用户输入转换为安全的 FTS5 查询
// 每个词加引号避免 FTS 语法注入，多个词之间为 AND 关系
func buildFTSQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		// 引号内的双引号需要转义
		escaped := strings.ReplaceAll(term, `"`, `""`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	return strings.Join(quoted, " ")
}

// appendFilterClauses 将结构化过滤条件转换为 WHERE 子句
func appendFilterClauses(where *[]string, args *[]interface{}, filters *conversation.SearchFilters) {
	if filters == nil {
		return
	}

	if filters.ProjectPath != "" {
		*where = append(*where, "m.project_path LIKE ?")
		*args = append(*args, filters.ProjectPath+"%")
	}
	if filters.After != nil {
		*where = append(*where, "m.timestamp >= ?")
		*args = append(*args, filters.After.UnixMilli())
	}
	if filters.Before != nil {
		*where = append(*where, "m.timestamp <= ?")
		*args = append(*args, filters.Before.UnixMilli())
	}
	if filters.Role != "" {
		*where = append(*where, "m.role = ?")
		*args = append(*args, string(filters.Role))
	}
	if filters.Language != "" {
		*where = append(*where, "m.language = ?")
		*args = append(*args, filters.Language)
	}
	if filters.FilePath != "" {
		*where = append(*where, "m.file_paths LIKE ?")
		*args = append(*args, "%"+filters.FilePath+"%")
	}
	if filters.Model != "" {
		*where = append(*where, "m.model = ?")
		*args = append(*args, filters.Model)
	}
}

// prefixColumns 给列清单加上表别名前缀
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// rowScanner database/sql 的 Row 和 Rows 的公共扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMessage 从一行结果扫描消息
func scanMessage(row rowScanner) (*conversation.Message, error) {
	var (
		msg           conversation.Message
		timestampMs   int64
		role          string
		toolUsesJSON  sql.NullString
		filePathsJSON sql.NullString
		language      sql.NullString
		model         sql.NullString
	)

	err := row.Scan(
		&msg.ID, &msg.SessionID, &msg.LineIndex, &msg.ProjectPath,
		&timestampMs, &role, &msg.Content,
		&toolUsesJSON, &filePathsJSON, &language, &model,
		&msg.Usage.InputTokens, &msg.Usage.OutputTokens,
		&msg.Usage.CacheWriteTokens, &msg.Usage.CacheReadTokens,
	)
	if err != nil {
		return nil, err
	}

	msg.Timestamp = time.UnixMilli(timestampMs)
	msg.Role = conversation.Role(role)
	msg.Language = language.String
	msg.Model = model.String

	if toolUsesJSON.Valid && toolUsesJSON.String != "" && toolUsesJSON.String != "null" {
		_ = json.Unmarshal([]byte(toolUsesJSON.String), &msg.ToolUses)
	}
	if filePathsJSON.Valid && filePathsJSON.String != "" && filePathsJSON.String != "null" {
		_ = json.Unmarshal([]byte(filePathsJSON.String), &msg.FilePaths)
	}

	return &msg, nil
}

// scanMessageWithRank 扫描消息及其 bm25 得分
func scanMessageWithRank(rows *sql.Rows) (*conversation.Message, float64, error) {
	var (
		msg           conversation.Message
		timestampMs   int64
		role          string
		toolUsesJSON  sql.NullString
		filePathsJSON sql.NullString
		language      sql.NullString
		model         sql.NullString
		rank          float64
	)

	err := rows.Scan(
		&msg.ID, &msg.SessionID, &msg.LineIndex, &msg.ProjectPath,
		&timestampMs, &role, &msg.Content,
		&toolUsesJSON, &filePathsJSON, &language, &model,
		&msg.Usage.InputTokens, &msg.Usage.OutputTokens,
		&msg.Usage.CacheWriteTokens, &msg.Usage.CacheReadTokens,
		&rank,
	)
	if err != nil {
		return nil, 0, err
	}

	msg.Timestamp = time.UnixMilli(timestampMs)
	msg.Role = conversation.Role(role)
	msg.Language = language.String
	msg.Model = model.String

	if toolUsesJSON.Valid && toolUsesJSON.String != "" && toolUsesJSON.String != "null" {
		_ = json.Unmarshal([]byte(toolUsesJSON.String), &msg.ToolUses)
	}
	if filePathsJSON.Valid && filePathsJSON.String != "" && filePathsJSON.String != "null" {
		_ = json.Unmarshal([]byte(filePathsJSON.String), &msg.FilePaths)
	}

	return &msg, rank, nil
}

// collectMessages 收集多行结果
func collectMessages(rows *sql.Rows) ([]*conversation.Message, error) {
	var messages []*conversation.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
