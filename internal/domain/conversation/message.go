// Package conversation 定义对话消息的领域模型
// 一条 Message 对应会话日志文件中的一行结构化事件
package conversation

import "time"

// Role 消息角色
type Role string

// 支持的消息角色
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid 检查角色是否合法
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ToolUse 一次工具调用
type ToolUse struct {
	// Name 工具名称
	Name string `json:"name"`
	// Params 扁平化后的参数（key -> 字符串值）
	Params map[string]string `json:"params,omitempty"`
}

// Usage Token 用量计数
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens"`
}

// IsZero 检查是否所有计数都为零
func (u Usage) IsZero() bool {
	return u.InputTokens == 0 && u.OutputTokens == 0 &&
		u.CacheWriteTokens == 0 && u.CacheReadTokens == 0
}

// Total 所有计数之和
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.CacheWriteTokens + u.CacheReadTokens
}

// Message 一条对话消息记录
// 消息一经写入不再修改（append-only 语义）
type Message struct {
	// ID 由存储层在插入时分配的自增主键
	ID int64
	// SessionID 会话标识（文件名去掉 .jsonl 后缀）
	SessionID string
	// LineIndex 在源文件中的行号（从 0 开始）
	// 与 SessionID 共同构成幂等插入的唯一键
	LineIndex int
	// ProjectPath 会话所属的项目路径
	ProjectPath string
	// Timestamp 消息发生时间
	Timestamp time.Time
	// Role 消息角色
	Role Role
	// Content 拍平后的文本内容（text 块按序拼接）
	Content string

	// 以下为解析时派生的元数据
	ToolUses  []ToolUse
	FilePaths []string
	Language  string
	Model     string
	Usage     Usage
}

// Preview 返回内容预览（最多 n 个字符）
func (m *Message) Preview(n int) string {
	runes := []rune(m.Content)
	if len(runes) <= n {
		return m.Content
	}
	return string(runes[:n]) + "..."
}
