package ingest

import (
	"path/filepath"
	"strings"
)

// extensionLanguages 文件扩展名到编程语言的静态映射
var extensionLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".vue":   "vue",
	".dart":  "dart",
	".lua":   "lua",
	".ex":    "elixir",
	".exs":   "elixir",
	".zig":   "zig",
}

// inferLanguage 根据文件扩展名推断编程语言
// 未知扩展名返回空字符串
func inferLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	return extensionLanguages[ext]
}
