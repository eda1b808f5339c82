package search

import "strings"

// makeSnippet 生成人类可读的上下文片段
// 定位任一查询词的首次出现，截取其前后共 window 个字符的窗口，
// 窗口在任一端被截断时补省略号；找不到查询词时退回内容开头
func makeSnippet(content string, terms []string, window int) string {
	runes := []rune(content)
	if len(runes) <= window {
		return content
	}

	center := firstTermIndex(content, terms)
	if center < 0 {
		return string(runes[:window]) + "..."
	}

	// 以命中位置为中心截取窗口
	centerRunes := len([]rune(content[:center]))
	start := centerRunes - window/2
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
		start = end - window
		if start < 0 {
			start = 0
		}
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(runes) {
		snippet = snippet + "..."
	}
	return snippet
}

// firstTermIndex 返回任一查询词在内容中首次出现的字节偏移（大小写不敏感）
// 没有命中返回 -1
func firstTermIndex(content string, terms []string) int {
	lower := strings.ToLower(content)
	first := -1
	for _, term := range terms {
		if term == "" {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(term)); idx >= 0 {
			if first < 0 || idx < first {
				first = idx
			}
		}
	}
	return first
}
