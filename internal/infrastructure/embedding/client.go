// Package embedding 提供外部 embedding 提供方（Ollama 兼容 API）的客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/consearch/backend/internal/infrastructure/config"
	"github.com/consearch/backend/internal/infrastructure/log"
)

// 错误分类：调用方据此决定降级或直接上报
var (
	// ErrProviderUnavailable 提供方不可达（重试耗尽后的终态）
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrProviderMisconfigured 提供方可达但配置错误（空向量响应、模型缺失）
	// 重试无法修复配置问题，不重试
	ErrProviderMisconfigured = errors.New("embedding provider misconfigured")
)

// Client Embedding API 客户端
// 无状态，可被多个并发请求共享
type Client struct {
	baseURL    string
	model      string
	maxRetries int
	baseDelay  time.Duration
	minChars   int
	maxChars   int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 Embedding 客户端
func NewClient(cfg *config.EmbeddingConfig) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.RetryBaseDelay,
		minChars:   cfg.MinTextChars,
		maxChars:   cfg.MaxTextChars,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: log.NewModuleLogger("embedding", "client"),
	}
}

// Model 当前配置的模型标识
func (c *Client) Model() string {
	return c.model
}

// embedRequest Embedding 请求
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse Embedding 响应
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// tagsResponse 已安装模型列表响应
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// GenerateEmbedding 将文本向量化
// 文本长度先做本地校验，超出提供方边界的输入直接拒绝，不浪费网络往返
// 瞬时失败按指数退避重试，耗尽后返回 ErrProviderUnavailable
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	runeLen := len([]rune(text))
	if runeLen < c.minChars {
		return nil, fmt.Errorf("text too short for embedding: %d chars (minimum %d)", runeLen, c.minChars)
	}
	if runeLen > c.maxChars {
		return nil, fmt.Errorf("text too long for embedding: %d chars (maximum %d)", runeLen, c.maxChars)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避：baseDelay, 2*baseDelay, 4*baseDelay...
			delay := c.baseDelay << (attempt - 1)
			c.logger.Warn("Embedding request failed, retrying",
				"attempt", attempt+1,
				"max_retries", c.maxRetries,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vec, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		// 配置类错误重试无意义，立即上浮
		if errors.Is(err, ErrProviderMisconfigured) {
			return nil, err
		}
		lastErr = err
	}

	c.logger.Error("Embedding request failed after all retries",
		"max_retries", c.maxRetries,
		"error", lastErr,
	)
	return nil, fmt.Errorf("%w at %s after %d attempts: %v (start the service or pull model %q)",
		ErrProviderUnavailable, c.baseURL, c.maxRetries, lastErr, c.model)
}

// embedOnce 发送单次 embedding 请求
func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(embedRequest{
		Model: c.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 超时与连接失败同等对待，都计入重试
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// 4xx 通常是模型名错误等配置问题
			return nil, fmt.Errorf("%w: status %d: %s", ErrProviderMisconfigured, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embeddings) == 0 || len(embedResp.Embeddings[0]) == 0 {
		// 空向量响应说明模型配置有误，不重试
		return nil, fmt.Errorf("%w: empty embedding response for model %q", ErrProviderMisconfigured, c.model)
	}

	return embedResp.Embeddings[0], nil
}

// IsAvailable 探测提供方是否可用
// 检查服务可达且配置的模型已安装；任何失败都降级为 false，不上浮错误
func (c *Client) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Provider availability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return false
	}

	for _, m := range tags.Models {
		// 模型名可能带 ":latest" 等标签后缀
		if m.Name == c.model || strings.SplitN(m.Name, ":", 2)[0] == c.model {
			return true
		}
	}

	c.logger.Debug("Configured model not installed on provider", "model", c.model)
	return false
}

// Close 释放客户端持有的连接
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
