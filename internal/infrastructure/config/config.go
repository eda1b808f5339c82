// Package config 提供应用配置和数据目录解析
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Claude    ClaudeConfig    `yaml:"claude"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTPPort HTTP 服务监听端口
	HTTPPort string `yaml:"http_port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path 数据库文件路径，留空表示使用数据目录下的 consearch.db
	Path string `yaml:"path"`
}

// ClaudeConfig 会话日志目录配置
type ClaudeConfig struct {
	// ProjectsDir 项目目录根（存放 <project>/<session>.jsonl）
	// 留空表示自动检测 ~/.claude/projects
	ProjectsDir string `yaml:"projects_dir"`
}

// ResolveProjectsDir 解析项目目录根
func (c *ClaudeConfig) ResolveProjectsDir() string {
	if c.ProjectsDir != "" {
		return c.ProjectsDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".claude", "projects")
}

// EmbeddingConfig Embedding 提供方配置
type EmbeddingConfig struct {
	// BaseURL 提供方地址（Ollama 兼容 API）
	BaseURL string `yaml:"base_url"`
	// Model embedding 模型标识
	Model string `yaml:"model"`
	// RequestTimeout 单次请求超时
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxRetries 最大重试次数
	MaxRetries int `yaml:"max_retries"`
	// RetryBaseDelay 重试基础延迟（每次翻倍）
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	// MinTextChars / MaxTextChars 提供方接受的文本长度边界
	MinTextChars int `yaml:"min_text_chars"`
	MaxTextChars int `yaml:"max_text_chars"`
	// MinContentChars 低于此长度的内容不做向量化（协调器短路）
	MinContentChars int `yaml:"min_content_chars"`
	// BatchSize 批量生成时每批的请求数
	BatchSize int `yaml:"batch_size"`
	// BatchPause 每批之后的节流暂停
	BatchPause time.Duration `yaml:"batch_pause"`
}

// SearchConfig 检索配置
type SearchConfig struct {
	// DefaultLimit 默认返回结果数
	DefaultLimit int `yaml:"default_limit"`
	// MaxLimit 返回结果数上限
	MaxLimit int `yaml:"max_limit"`
	// CandidateLimit 混合检索时每路候选数上限
	CandidateLimit int `yaml:"candidate_limit"`
	// RRFConstant RRF 阻尼常数 k
	RRFConstant int `yaml:"rrf_constant"`
	// SnippetWindow 片段窗口（命中词两侧各取的字符数）
	SnippetWindow int `yaml:"snippet_window"`
}

// NewConfig 创建配置：默认值 + 数据目录下 config.yaml 的覆盖
func NewConfig() *Config {
	cfg := defaultConfig()

	// 配置文件可选，读取失败时沿用默认值
	path := filepath.Join(GetDataDir(), "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}

	return cfg
}

// defaultConfig 默认配置
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: ":19970",
		},
		Database: DatabaseConfig{
			Path: "",
		},
		Claude: ClaudeConfig{
			ProjectsDir: "",
		},
		Embedding: EmbeddingConfig{
			BaseURL:         "http://localhost:11434",
			Model:           "nomic-embed-text",
			RequestTimeout:  30 * time.Second,
			MaxRetries:      3,
			RetryBaseDelay:  time.Second,
			MinTextChars:    1,
			MaxTextChars:    8192,
			MinContentChars: 8,
			BatchSize:       10,
			BatchPause:      200 * time.Millisecond,
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxLimit:       100,
			CandidateLimit: 50,
			RRFConstant:    60,
			SnippetWindow:  80,
		},
	}
}

// NewServerConfig 提供服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// NewDatabaseConfig 提供数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewClaudeConfig 提供会话目录配置
func NewClaudeConfig(cfg *Config) *ClaudeConfig {
	return &cfg.Claude
}

// NewEmbeddingConfig 提供 embedding 配置
func NewEmbeddingConfig(cfg *Config) *EmbeddingConfig {
	return &cfg.Embedding
}

// NewSearchConfig 提供检索配置
func NewSearchConfig(cfg *Config) *SearchConfig {
	return &cfg.Search
}
