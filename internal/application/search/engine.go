// Package search 实现关键词、语义及混合检索
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/consearch/backend/internal/domain/conversation"
	vectormath "github.com/consearch/backend/internal/domain/embedding"
	domainsearch "github.com/consearch/backend/internal/domain/search"
	appembedding "github.com/consearch/backend/internal/application/embedding"
	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/log"
)

// Query 一次检索请求
type Query struct {
	// Text 查询串，可以为空（此时按过滤条件列出）
	Text string
	// Filters 结构化过滤条件，nil 表示不过滤
	Filters *conversation.SearchFilters
	// Mode 检索模式，零值按 HYBRID 处理
	Mode domainsearch.Mode
	// Limit 结果上限，非正数使用默认值
	Limit int
}

// Engine 混合检索引擎
// 提供方故障时透明降级为关键词检索，检索永远返回结果而不是错误
type Engine struct {
	messageRepo   conversation.MessageRepository
	embeddingRepo conversation.EmbeddingRepository
	coordinator   *appembedding.Coordinator

	defaultLimit   int
	maxLimit       int
	candidateLimit int
	rrfConstant    int
	snippetWindow  int

	logger *slog.Logger
}

// NewEngine 创建检索引擎
func NewEngine(
	messageRepo conversation.MessageRepository,
	embeddingRepo conversation.EmbeddingRepository,
	coordinator *appembedding.Coordinator,
	cfg *config.SearchConfig,
) *Engine {
	return &Engine{
		messageRepo:    messageRepo,
		embeddingRepo:  embeddingRepo,
		coordinator:    coordinator,
		defaultLimit:   cfg.DefaultLimit,
		maxLimit:       cfg.MaxLimit,
		candidateLimit: cfg.CandidateLimit,
		rrfConstant:    cfg.RRFConstant,
		snippetWindow:  cfg.SnippetWindow,
		logger:         log.NewModuleLogger("search", "engine"),
	}
}

// Search 检索入口
func (e *Engine) Search(ctx context.Context, query *Query) ([]*domainsearch.Result, error) {
	limit := e.normalizeLimit(query.Limit)
	filters := query.Filters
	if filters == nil {
		filters = &conversation.SearchFilters{}
	}

	text := strings.TrimSpace(query.Text)
	if text == "" {
		// 空查询：有过滤条件时按条件列出，否则返回空集
		if filters.IsEmpty() {
			return []*domainsearch.Result{}, nil
		}
		return e.filterOnly(filters, limit)
	}

	mode := query.Mode
	if mode == "" {
		mode = domainsearch.ModeHybrid
	}

	switch mode {
	case domainsearch.ModeKeyword:
		return e.keywordSearch(text, filters, limit)
	case domainsearch.ModeSemantic:
		return e.semanticSearch(ctx, text, filters, limit)
	case domainsearch.ModeHybrid:
		return e.hybridSearch(ctx, text, filters, limit)
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

// FindSimilar 查找与指定消息语义相近的消息
// 路径上的任何失败都降级为空结果，不向调用方传播
func (e *Engine) FindSimilar(ctx context.Context, messageID int64, limit int) ([]*domainsearch.Result, error) {
	limit = e.normalizeLimit(limit)

	msg, err := e.messageRepo.GetMessage(messageID)
	if err != nil || msg == nil {
		return []*domainsearch.Result{}, nil
	}

	vector, err := e.coordinator.GetOrGenerate(ctx, messageID, msg.Content)
	if err != nil || vector == nil {
		e.logger.Debug("Cannot obtain anchor embedding, returning empty result", "message_id", messageID, "error", err)
		return []*domainsearch.Result{}, nil
	}

	results, err := e.searchByVector(vector, nil, &conversation.SearchFilters{}, limit, messageID)
	if err != nil {
		e.logger.Warn("Similarity search failed, returning empty result", "message_id", messageID, "error", err)
		return []*domainsearch.Result{}, nil
	}
	return results, nil
}

// normalizeLimit 将结果上限规整到合法区间
func (e *Engine) normalizeLimit(limit int) int {
	if limit <= 0 {
		return e.defaultLimit
	}
	if limit > e.maxLimit {
		return e.maxLimit
	}
	return limit
}

// filterOnly 仅按过滤条件列出，按时间倒序，得分统一为 1
func (e *Engine) filterOnly(filters *conversation.SearchFilters, limit int) ([]*domainsearch.Result, error) {
	messages, err := e.messageRepo.ListByFilters(filters, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list by filters: %w", err)
	}

	results := make([]*domainsearch.Result, 0, len(messages))
	for _, msg := range messages {
		results = append(results, &domainsearch.Result{
			Message: msg,
			Snippet: makeSnippet(msg.Content, nil, e.snippetWindow),
			Score:   1,
		})
	}
	return results, nil
}

// keywordSearch 全文检索，按存储层相关性排序
func (e *Engine) keywordSearch(text string, filters *conversation.SearchFilters, limit int) ([]*domainsearch.Result, error) {
	matches, err := e.messageRepo.SearchKeyword(text, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	terms := strings.Fields(text)
	results := make([]*domainsearch.Result, 0, len(matches))
	for _, match := range matches {
		results = append(results, &domainsearch.Result{
			Message: match.Message,
			Snippet: makeSnippet(match.Message.Content, terms, e.snippetWindow),
			// bm25 越小越相关，取反后越大越相关
			Score: -match.Rank,
		})
	}
	return results, nil
}

// semanticSearch 语义检索
// 查询向量生成失败时透明降级为关键词检索
func (e *Engine) semanticSearch(ctx context.Context, text string, filters *conversation.SearchFilters, limit int) ([]*domainsearch.Result, error) {
	vector, err := e.coordinator.GenerateQueryEmbedding(ctx, text)
	if err != nil {
		e.logger.Warn("Query embedding failed, falling back to keyword search", "error", err)
		return e.keywordSearch(text, filters, limit)
	}

	return e.searchByVector(vector, strings.Fields(text), filters, limit, 0)
}

// searchByVector 用余弦相似度对所有已存 embedding 的消息打分，取前 N
// excludeID 非零时对应消息被排除（find-similar 排除锚点自身）
func (e *Engine) searchByVector(vector []float32, terms []string, filters *conversation.SearchFilters, limit int, excludeID int64) ([]*domainsearch.Result, error) {
	stored, err := e.embeddingRepo.ListEmbeddings(e.coordinator.Model())
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}

	type scored struct {
		messageID int64
		score     float64
	}
	candidates := make([]scored, 0, len(stored))
	for _, emb := range stored {
		if emb.MessageID == excludeID {
			continue
		}
		candidates = append(candidates, scored{
			messageID: emb.MessageID,
			score:     vectormath.Cosine(vector, emb.Vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].messageID > candidates[j].messageID
	})

	// 过滤在截断之前做：被过滤掉的名额由排名靠后的候选补上，
	// 按相似度顺序分批取消息，凑够 limit 条即停
	const fetchChunk = 256
	results := make([]*domainsearch.Result, 0, limit)
	for start := 0; start < len(candidates) && len(results) < limit; start += fetchChunk {
		end := start + fetchChunk
		if end > len(candidates) {
			end = len(candidates)
		}

		ids := make([]int64, 0, end-start)
		scores := make(map[int64]float64, end-start)
		for _, c := range candidates[start:end] {
			ids = append(ids, c.messageID)
			scores[c.messageID] = c.score
		}

		messages, err := e.messageRepo.GetMessagesByIDs(ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidate messages: %w", err)
		}

		for _, msg := range messages {
			if !matchesFilters(msg, filters) {
				continue
			}
			results = append(results, &domainsearch.Result{
				Message: msg,
				Snippet: makeSnippet(msg.Content, terms, e.snippetWindow),
				Score:   scores[msg.ID],
			})
			if len(results) == limit {
				break
			}
		}
	}
	return results, nil
}

// hybridSearch 关键词与语义检索各自独立执行后做 RRF 融合
// 语义半边失败时降级为纯关键词结果
func (e *Engine) hybridSearch(ctx context.Context, text string, filters *conversation.SearchFilters, limit int) ([]*domainsearch.Result, error) {
	keywordResults, err := e.keywordSearch(text, filters, e.candidateLimit)
	if err != nil {
		return nil, err
	}

	vector, err := e.coordinator.GenerateQueryEmbedding(ctx, text)
	if err != nil {
		// 提供方不可用只影响质量不影响可用性：降级为纯关键词
		e.logger.Warn("Query embedding failed, hybrid degrades to keyword only", "error", err)
		if len(keywordResults) > limit {
			keywordResults = keywordResults[:limit]
		}
		return keywordResults, nil
	}

	semanticResults, err := e.searchByVector(vector, strings.Fields(text), filters, e.candidateLimit, 0)
	if err != nil {
		e.logger.Warn("Vector search failed, hybrid degrades to keyword only", "error", err)
		if len(keywordResults) > limit {
			keywordResults = keywordResults[:limit]
		}
		return keywordResults, nil
	}

	fused := e.fuseByRRF(keywordResults, semanticResults)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused, nil
}

// fuseByRRF Reciprocal Rank Fusion
// 每条记录的得分是 1/(k+rank) 在其出现的列表上求和（rank 从 1 开始）
// 只出现在单个列表中的记录仍然获得该列表的贡献
func (e *Engine) fuseByRRF(keywordResults, semanticResults []*domainsearch.Result) []*domainsearch.Result {
	fused := make(map[int64]*domainsearch.Result)

	for rank, result := range keywordResults {
		fused[result.Message.ID] = &domainsearch.Result{
			Message: result.Message,
			// 关键词片段质量更高，两边都命中时优先保留
			Snippet: result.Snippet,
			Score:   rrfScore(e.rrfConstant, rank+1),
		}
	}

	for rank, result := range semanticResults {
		if existing, ok := fused[result.Message.ID]; ok {
			existing.Score += rrfScore(e.rrfConstant, rank+1)
			continue
		}
		fused[result.Message.ID] = &domainsearch.Result{
			Message: result.Message,
			Snippet: result.Snippet,
			Score:   rrfScore(e.rrfConstant, rank+1),
		}
	}

	results := make([]*domainsearch.Result, 0, len(fused))
	for _, result := range fused {
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// 同分按时间倒序，保证排序确定
		return results[i].Message.Timestamp.After(results[j].Message.Timestamp)
	})
	return results
}

// rrfScore 单个列表的 RRF 贡献
func rrfScore(k, rank int) float64 {
	return 1.0 / float64(k+rank)
}

// matchesFilters 内存中的过滤条件匹配（用于语义检索候选集）
func matchesFilters(msg *conversation.Message, filters *conversation.SearchFilters) bool {
	if filters == nil || filters.IsEmpty() {
		return true
	}
	if filters.ProjectPath != "" && !strings.HasPrefix(msg.ProjectPath, filters.ProjectPath) {
		return false
	}
	if filters.After != nil && msg.Timestamp.Before(*filters.After) {
		return false
	}
	if filters.Before != nil && msg.Timestamp.After(*filters.Before) {
		return false
	}
	if filters.Role != "" && msg.Role != filters.Role {
		return false
	}
	if filters.Language != "" && msg.Language != filters.Language {
		return false
	}
	if filters.Model != "" && msg.Model != filters.Model {
		return false
	}
	if filters.FilePath != "" {
		found := false
		for _, path := range msg.FilePaths {
			if strings.Contains(path, filters.FilePath) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
