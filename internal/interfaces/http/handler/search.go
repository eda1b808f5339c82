// Package handler 实现各 HTTP 端点的处理器
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	appsearch "github.com/consearch/backend/internal/application/search"
	"github.com/consearch/backend/internal/domain/conversation"
	domainsearch "github.com/consearch/backend/internal/domain/search"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/consearch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// SearchHandler 检索处理器
type SearchHandler struct {
	engine *appsearch.Engine
	logger *slog.Logger
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(engine *appsearch.Engine) *SearchHandler {
	return &SearchHandler{
		engine: engine,
		logger: log.NewModuleLogger("http", "search_handler"),
	}
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Filters *FilterRequest `json:"filters,omitempty"`
}

// FilterRequest 结构化过滤条件
type FilterRequest struct {
	ProjectPath string `json:"project_path,omitempty"`
	After       string `json:"after,omitempty"`
	Before      string `json:"before,omitempty"`
	Role        string `json:"role,omitempty"`
	Language    string `json:"language,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	Model       string `json:"model,omitempty"`
}

// MessageDTO 消息的对外表示
type MessageDTO struct {
	ID          int64                  `json:"id"`
	SessionID   string                 `json:"session_id"`
	ProjectPath string                 `json:"project_path"`
	Timestamp   time.Time              `json:"timestamp"`
	Role        string                 `json:"role"`
	Content     string                 `json:"content"`
	ToolUses    []conversation.ToolUse `json:"tool_uses,omitempty"`
	FilePaths   []string               `json:"file_paths,omitempty"`
	Language    string                 `json:"language,omitempty"`
	Model       string                 `json:"model,omitempty"`
	Usage       conversation.Usage     `json:"usage"`
}

// ResultDTO 单条检索结果
type ResultDTO struct {
	Message MessageDTO `json:"message"`
	Snippet string     `json:"snippet"`
	Score   float64    `json:"score"`
}

// toMessageDTO 转换领域消息为对外表示
func toMessageDTO(msg *conversation.Message) MessageDTO {
	return MessageDTO{
		ID:          msg.ID,
		SessionID:   msg.SessionID,
		ProjectPath: msg.ProjectPath,
		Timestamp:   msg.Timestamp,
		Role:        string(msg.Role),
		Content:     msg.Content,
		ToolUses:    msg.ToolUses,
		FilePaths:   msg.FilePaths,
		Language:    msg.Language,
		Model:       msg.Model,
		Usage:       msg.Usage,
	}
}

// toResultDTOs 转换检索结果列表
func toResultDTOs(results []*domainsearch.Result) []ResultDTO {
	dtos := make([]ResultDTO, 0, len(results))
	for _, r := range results {
		dtos = append(dtos, ResultDTO{
			Message: toMessageDTO(r.Message),
			Snippet: r.Snippet,
			Score:   r.Score,
		})
	}
	return dtos
}

// Search 处理检索请求
// POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 1001, "invalid request body: "+err.Error())
		return
	}

	mode := domainsearch.Mode(req.Mode)
	if req.Mode != "" && !mode.IsValid() {
		response.Error(c, http.StatusBadRequest, 1002, "mode must be one of keyword/semantic/hybrid")
		return
	}

	filters, err := parseFilters(req.Filters)
	if err != nil {
		response.Error(c, http.StatusBadRequest, 1003, err.Error())
		return
	}

	results, err := h.engine.Search(c.Request.Context(), &appsearch.Query{
		Text:    req.Query,
		Filters: filters,
		Mode:    mode,
		Limit:   req.Limit,
	})
	if err != nil {
		h.logger.Error("Search failed", "error", err)
		response.Error(c, http.StatusInternalServerError, 1004, "search failed")
		return
	}

	response.Success(c, gin.H{
		"results": toResultDTOs(results),
		"count":   len(results),
	})
}

// FindSimilar 查找相似消息
// GET /api/v1/messages/:id/similar
func (h *SearchHandler) FindSimilar(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, 1001, "message id must be an integer")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, 1001, "limit must be an integer")
			return
		}
	}

	results, err := h.engine.FindSimilar(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("Find-similar failed", "message_id", id, "error", err)
		response.Error(c, http.StatusInternalServerError, 1004, "similarity search failed")
		return
	}

	response.Success(c, gin.H{
		"results": toResultDTOs(results),
		"count":   len(results),
	})
}

// parseFilters 将请求过滤条件转换为领域过滤条件
func parseFilters(req *FilterRequest) (*conversation.SearchFilters, error) {
	if req == nil {
		return nil, nil
	}

	filters := &conversation.SearchFilters{
		ProjectPath: req.ProjectPath,
		Role:        conversation.Role(req.Role),
		Language:    req.Language,
		FilePath:    req.FilePath,
		Model:       req.Model,
	}

	if req.Role != "" && !filters.Role.IsValid() {
		return nil, &filterError{"role must be one of user/assistant/system"}
	}

	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, &filterError{"after must be an RFC3339 timestamp"}
		}
		filters.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, &filterError{"before must be an RFC3339 timestamp"}
		}
		filters.Before = &t
	}

	return filters, nil
}

// filterError 过滤条件校验错误
type filterError struct {
	msg string
}

func (e *filterError) Error() string { return e.msg }
