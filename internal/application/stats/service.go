// Package stats 提供语料库的统计查询
package stats

import (
	"fmt"
	"log/slog"

	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/infrastructure/tokenizer"
)

// TokenStats Token 用量统计
// 有 usage 数据的消息直接合计；没有的用 tiktoken 离线估算补齐
type TokenStats struct {
	// Reported 提供方上报的用量合计
	Reported conversation.Usage `json:"reported"`
	// EstimatedTokens 缺失 usage 的消息的估算 token 数
	EstimatedTokens int `json:"estimated_tokens"`
	// EstimatedMessages 参与估算的消息数
	EstimatedMessages int `json:"estimated_messages"`
	// EstimationMethod 估算方法标识
	EstimationMethod string `json:"estimation_method"`
	// TotalTokens 上报合计与估算之和
	TotalTokens int `json:"total_tokens"`
}

// Overview 语料库概览
type Overview struct {
	TotalMessages int `json:"total_messages"`
	TotalSessions int `json:"total_sessions"`
}

// Service 统计服务
type Service struct {
	messageRepo conversation.MessageRepository
	logger      *slog.Logger
}

// NewService 创建统计服务
func NewService(messageRepo conversation.MessageRepository) *Service {
	return &Service{
		messageRepo: messageRepo,
		logger:      log.NewModuleLogger("stats", "service"),
	}
}

// TokenUsage 计算全语料库的 token 用量
func (s *Service) TokenUsage() (*TokenStats, error) {
	reported, err := s.messageRepo.SumUsage()
	if err != nil {
		return nil, fmt.Errorf("failed to sum reported usage: %w", err)
	}

	stats := &TokenStats{Reported: reported}

	// 旧会话格式没有 usage 字段，用 tiktoken 补齐估算
	contents, err := s.messageRepo.ListContentWithoutUsage()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages without usage: %w", err)
	}

	if len(contents) > 0 {
		estimator, err := tokenizer.GetTiktokenEstimator()
		if err != nil {
			// 编码文件加载失败只影响估算部分，上报数据仍然可用
			s.logger.Warn("Tiktoken estimator unavailable, skipping estimation", "error", err)
		} else {
			stats.EstimatedTokens = estimator.CountTokensBatch(contents)
			stats.EstimatedMessages = len(contents)
			stats.EstimationMethod = estimator.GetMethod()
		}
	}

	stats.TotalTokens = reported.Total() + stats.EstimatedTokens
	return stats, nil
}

// Overview 语料库概览统计
func (s *Service) Overview() (*Overview, error) {
	messages, err := s.messageRepo.CountMessages()
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	sessions, err := s.messageRepo.CountSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	return &Overview{
		TotalMessages: messages,
		TotalSessions: sessions,
	}, nil
}
