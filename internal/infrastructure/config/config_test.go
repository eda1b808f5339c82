package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	ResetDataDir()
	t.Setenv(EnvDataDir, t.TempDir())

	cfg := NewConfig()

	assert.Equal(t, ":19970", cfg.Server.HTTPPort)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 3, cfg.Embedding.MaxRetries)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
	assert.Equal(t, 50, cfg.Search.CandidateLimit)
}

func TestNewConfig_FileOverride(t *testing.T) {
	ResetDataDir()
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	content := "server:\n  http_port: \":29999\"\nembedding:\n  model: custom-model\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))

	cfg := NewConfig()

	assert.Equal(t, ":29999", cfg.Server.HTTPPort)
	assert.Equal(t, "custom-model", cfg.Embedding.Model)
	// 未覆盖的字段保持默认
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
}

func TestGetDataDir_EnvOverride(t *testing.T) {
	ResetDataDir()
	defer ResetDataDir()

	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)

	assert.Equal(t, dir, GetDataDir())
}

func TestResolveProjectsDir_Explicit(t *testing.T) {
	cfg := &ClaudeConfig{ProjectsDir: "/custom/projects"}
	assert.Equal(t, "/custom/projects", cfg.ResolveProjectsDir())
}

func TestResolveProjectsDir_Default(t *testing.T) {
	cfg := &ClaudeConfig{}
	dir := cfg.ResolveProjectsDir()
	assert.Contains(t, dir, filepath.Join(".claude", "projects"))
}
