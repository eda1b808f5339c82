// Package search 定义检索相关的领域类型
package search

import "github.com/consearch/backend/internal/domain/conversation"

// Mode 检索模式
// 由调用方选择，不涉及状态流转；推荐默认使用 ModeHybrid
type Mode string

const (
	// ModeKeyword 纯关键词检索（全文索引）
	ModeKeyword Mode = "keyword"
	// ModeSemantic 纯语义检索（向量相似度）
	ModeSemantic Mode = "semantic"
	// ModeHybrid 混合检索（RRF 融合）
	ModeHybrid Mode = "hybrid"
)

// IsValid 检查模式是否合法
func (m Mode) IsValid() bool {
	switch m {
	case ModeKeyword, ModeSemantic, ModeHybrid:
		return true
	}
	return false
}

// Result 一条检索结果
type Result struct {
	// Message 命中的消息记录
	Message *conversation.Message
	// Snippet 人类可读的上下文片段
	Snippet string
	// Score 融合后的相关性得分（越大越相关）
	Score float64
}

// CoverageStats embedding 覆盖率统计
type CoverageStats struct {
	// TotalMessages 消息总数
	TotalMessages int `json:"total_messages"`
	// EmbeddedMessages 已有 embedding 的消息数
	EmbeddedMessages int `json:"embedded_messages"`
	// Model 当前激活的 embedding 模型
	Model string `json:"model"`
}

// Coverage 覆盖率（0~1）
func (s *CoverageStats) Coverage() float64 {
	if s.TotalMessages == 0 {
		return 0
	}
	return float64(s.EmbeddedMessages) / float64(s.TotalMessages)
}
