package conversation

import "time"

// SearchFilters 结构化检索过滤条件
// 所有字段均为可选，零值表示不过滤
type SearchFilters struct {
	// ProjectPath 项目路径（前缀匹配）
	ProjectPath string
	// After / Before 时间范围
	After  *time.Time
	Before *time.Time
	// Role 消息角色
	Role Role
	// Language 推断出的编程语言
	Language string
	// FilePath 引用的文件路径（子串匹配）
	FilePath string
	// Model 模型标识
	Model string
}

// IsEmpty 检查是否没有任何激活的过滤条件
func (f *SearchFilters) IsEmpty() bool {
	return f.ProjectPath == "" && f.After == nil && f.Before == nil &&
		f.Role == "" && f.Language == "" && f.FilePath == "" && f.Model == ""
}

// KeywordMatch 全文检索命中
type KeywordMatch struct {
	Message *Message
	// Rank 存储层的相关性得分（bm25，越小越相关）
	Rank float64
}

// MessageRepository 消息仓库接口
type MessageRepository interface {
	// InsertMessage 插入消息，返回分配的 ID
	// 同一 (session_id, line_index) 重复插入是无副作用的幂等操作，
	// 此时 inserted 返回 false，id 返回已存在记录的主键
	InsertMessage(msg *Message) (id int64, inserted bool, err error)

	// GetMessage 按主键查询，不存在返回 nil
	GetMessage(id int64) (*Message, error)

	// SearchKeyword 全文检索，按相关性排序（同分按时间倒序）
	SearchKeyword(query string, filters *SearchFilters, limit int) ([]*KeywordMatch, error)

	// ListByFilters 仅按过滤条件查询，按时间倒序
	ListByFilters(filters *SearchFilters, limit int) ([]*Message, error)

	// GetMessagesByIDs 批量按主键查询，保持入参顺序，缺失的 ID 跳过
	GetMessagesByIDs(ids []int64) ([]*Message, error)

	// ListWithoutEmbedding 查询尚无指定模型 embedding 的消息
	ListWithoutEmbedding(model string) ([]*Message, error)

	// CountMessages 消息总数
	CountMessages() (int, error)

	// CountSessions 会话总数
	CountSessions() (int, error)

	// SumUsage 所有消息的 Token 用量合计
	SumUsage() (Usage, error)

	// ListContentWithoutUsage 查询没有任何 usage 计数的消息内容
	ListContentWithoutUsage() ([]string, error)
}

// StoredEmbedding 一条已持久化的 embedding 记录
type StoredEmbedding struct {
	MessageID int64
	Model     string
	Vector    []float32
}

// EmbeddingRepository embedding 仓库接口
// 以 (message_id, model) 为唯一键，向量以定长 float32 blob 存储
type EmbeddingRepository interface {
	// SaveEmbedding 保存（或整体替换）一条 embedding
	SaveEmbedding(messageID int64, model string, vector []float32) error

	// GetEmbedding 查询单条 embedding，不存在返回 nil
	GetEmbedding(messageID int64, model string) ([]float32, error)

	// HasEmbedding 检查是否已存在
	HasEmbedding(messageID int64, model string) (bool, error)

	// ListEmbeddings 遍历指定模型的全部 embedding
	ListEmbeddings(model string) ([]*StoredEmbedding, error)

	// CountEmbeddings 指定模型的 embedding 总数
	CountEmbeddings(model string) (int, error)
}

// FileOffsetRepository 文件读取进度仓库接口
// 记录每个会话文件已提交的行数，增量解析只处理之后的行
type FileOffsetRepository interface {
	// GetCommittedLines 已提交的行数，从未见过的文件返回 0
	GetCommittedLines(filePath string) (int, error)

	// SetCommittedLines 更新已提交的行数
	SetCommittedLines(filePath string, lines int) error
}
