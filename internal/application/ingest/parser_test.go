package ingest

import (
	"testing"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_FlatContent(t *testing.T) {
	line := `{"type":"user","timestamp":"2026-03-01T10:00:00Z","message":{"role":"user","content":"How do I use FTS5?"}}`

	msg, err := ParseLine(line, "/Users/me/code/myproject")
	require.NoError(t, err)

	assert.Equal(t, conversation.RoleUser, msg.Role)
	assert.Equal(t, "How do I use FTS5?", msg.Content)
	assert.Equal(t, "/Users/me/code/myproject", msg.ProjectPath)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), msg.Timestamp)
	assert.Empty(t, msg.ToolUses)
	assert.True(t, msg.Usage.IsZero())
}

func TestParseLine_BlockContent(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2026-03-01T10:01:00Z","message":{` +
		`"role":"assistant","model":"claude-sonnet-4","content":[` +
		`{"type":"text","text":"Let me check the file."},` +
		`{"type":"tool_use","name":"Read","input":{"file_path":"/src/main.kt","limit":100}},` +
		`{"type":"text","text":"Found it."}` +
		`],"usage":{"input_tokens":120,"output_tokens":45,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}}`

	msg, err := ParseLine(line, "/src")
	require.NoError(t, err)

	// text 块按序拼接，工具调用不进入正文
	assert.Equal(t, "Let me check the file.\nFound it.", msg.Content)
	assert.Equal(t, "claude-sonnet-4", msg.Model)

	require.Len(t, msg.ToolUses, 1)
	assert.Equal(t, "Read", msg.ToolUses[0].Name)
	assert.Equal(t, "/src/main.kt", msg.ToolUses[0].Params["file_path"])
	assert.Equal(t, "100", msg.ToolUses[0].Params["limit"])

	assert.Equal(t, []string{"/src/main.kt"}, msg.FilePaths)
	assert.Equal(t, "kotlin", msg.Language)

	assert.Equal(t, 120, msg.Usage.InputTokens)
	assert.Equal(t, 45, msg.Usage.OutputTokens)
	assert.Equal(t, 10, msg.Usage.CacheWriteTokens)
	assert.Equal(t, 5, msg.Usage.CacheReadTokens)
}

func TestParseLine_Deterministic(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2026-03-01T10:01:00Z","message":{` +
		`"role":"assistant","content":[{"type":"text","text":"hello"},` +
		`{"type":"tool_use","name":"Edit","input":{"file_path":"a.go"}}]}}`

	first, err := ParseLine(line, "/p")
	require.NoError(t, err)
	second, err := ParseLine(line, "/p")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParseLine_SkipConditions(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty line", ""},
		{"not json", "this is not json"},
		{"truncated json", `{"type":"user","time`},
		{"missing role", `{"timestamp":"2026-03-01T10:00:00Z","message":{"content":"hi"}}`},
		{"unknown role", `{"type":"summary","timestamp":"2026-03-01T10:00:00Z","message":{"role":"summary","content":"x"}}`},
		{"missing timestamp", `{"type":"user","message":{"role":"user","content":"hi"}}`},
		{"bad timestamp", `{"type":"user","timestamp":"yesterday","message":{"role":"user","content":"hi"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseLine(tt.line, "/p")
			assert.Error(t, err)
			assert.Nil(t, msg)
		})
	}
}

func TestParseLine_MissingUsageDefaultsToZero(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2026-03-01T10:00:00Z","message":{` +
		`"role":"assistant","content":"ok","usage":{"output_tokens":7}}}`

	msg, err := ParseLine(line, "/p")
	require.NoError(t, err)

	assert.Equal(t, 0, msg.Usage.InputTokens)
	assert.Equal(t, 7, msg.Usage.OutputTokens)
	assert.Equal(t, 0, msg.Usage.CacheWriteTokens)
	assert.Equal(t, 0, msg.Usage.CacheReadTokens)
}

func TestParseLine_UnknownExtensionYieldsNoLanguage(t *testing.T) {
	line := `{"type":"assistant","timestamp":"2026-03-01T10:00:00Z","message":{` +
		`"role":"assistant","content":[{"type":"tool_use","name":"Read","input":{"file_path":"data.xyzzy"}}]}}`

	msg, err := ParseLine(line, "/p")
	require.NoError(t, err)

	assert.Equal(t, []string{"data.xyzzy"}, msg.FilePaths)
	assert.Empty(t, msg.Language)
}

func TestDecodeProjectPath(t *testing.T) {
	tests := []struct {
		dirName  string
		expected string
	}{
		{"-Users-me-code-myproject", "/Users/me/code/myproject"},
		{"-home-user-workspace", "/home/user/workspace"},
		{"plain", "plain"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.dirName, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeProjectPath(tt.dirName))
		})
	}
}

func TestSessionIDFromFileName(t *testing.T) {
	assert.Equal(t, "abc123", SessionIDFromFileName("abc123.jsonl"))
	assert.Equal(t, "notes.txt", SessionIDFromFileName("notes.txt"))
}
