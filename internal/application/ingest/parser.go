package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/consearch/backend/internal/domain/conversation"
)

// 解析跳过原因，调用方按行记录后继续处理下一行
var (
	errMalformedLine    = fmt.Errorf("line is not a valid event")
	errMissingRole      = fmt.Errorf("event has no role")
	errUnknownRole      = fmt.Errorf("event role is not recognized")
	errMissingTimestamp = fmt.Errorf("event has no timestamp")
)

// rawEvent 会话日志中的一行结构化事件
type rawEvent struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Timestamp string      `json:"timestamp"`
	Message   *rawMessage `json:"message"`
}

// rawMessage 事件内嵌的消息体
type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *rawUsage       `json:"usage"`
}

// rawUsage 提供方上报的 token 用量
type rawUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// rawContentBlock 类型化内容块（text / tool_use / tool_result）
type rawContentBlock struct {
	Type  string                     `json:"type"`
	Text  string                     `json:"text"`
	Name  string                     `json:"name"`
	Input map[string]json.RawMessage `json:"input"`
}

// ParseLine 将会话日志的一行解析为消息记录
// 同一行和项目路径的解析结果是确定的，跳过原因通过 error 返回
func ParseLine(line string, projectPath string) (*conversation.Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errMalformedLine
	}

	var event rawEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedLine, err)
	}

	role := resolveRole(&event)
	if role == "" {
		return nil, errMissingRole
	}
	if !conversation.Role(role).IsValid() {
		return nil, fmt.Errorf("%w: %q", errUnknownRole, role)
	}

	if event.Timestamp == "" {
		return nil, errMissingTimestamp
	}
	timestamp, err := time.Parse(time.RFC3339, event.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp %q", errMalformedLine, event.Timestamp)
	}

	msg := &conversation.Message{
		ProjectPath: projectPath,
		Timestamp:   timestamp,
		Role:        conversation.Role(role),
	}

	if event.Message != nil {
		msg.Model = event.Message.Model
		msg.Content, msg.ToolUses, msg.FilePaths = flattenContent(event.Message.Content)
		// 首个涉及文件的工具调用驱动语言推断
		if len(msg.FilePaths) > 0 {
			msg.Language = inferLanguage(msg.FilePaths[0])
		}
		// usage 计数原样拷贝，缺失的计数默认为零
		if event.Message.Usage != nil {
			msg.Usage = conversation.Usage{
				InputTokens:      event.Message.Usage.InputTokens,
				OutputTokens:     event.Message.Usage.OutputTokens,
				CacheWriteTokens: event.Message.Usage.CacheCreationInputTokens,
				CacheReadTokens:  event.Message.Usage.CacheReadInputTokens,
			}
		}
	}

	return msg, nil
}

// resolveRole 提取事件角色：优先消息体内的 role，退回事件类型
func resolveRole(event *rawEvent) string {
	if event.Message != nil && event.Message.Role != "" {
		return event.Message.Role
	}
	return event.Type
}

// flattenContent 将内容拍平为文本，同时提取工具调用元数据
// 内容可能是扁平字符串，也可能是类型化块数组
func flattenContent(raw json.RawMessage) (string, []conversation.ToolUse, []string) {
	if len(raw) == 0 {
		return "", nil, nil
	}

	// 扁平字符串
	var flat string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil, nil
	}

	// 类型化块数组
	var blocks []rawContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, nil
	}

	var (
		texts     []string
		toolUses  []conversation.ToolUse
		filePaths []string
	)

	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			params := flattenParams(block.Input)
			toolUses = append(toolUses, conversation.ToolUse{
				Name:   block.Name,
				Params: params,
			})
			if path := extractFilePath(params); path != "" {
				filePaths = append(filePaths, path)
			}
		}
	}

	return strings.Join(texts, "\n"), toolUses, filePaths
}

// flattenParams 将工具调用参数拍平为字符串映射
func flattenParams(input map[string]json.RawMessage) map[string]string {
	if len(input) == 0 {
		return nil
	}

	params := make(map[string]string, len(input))
	for key, value := range input {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			params[key] = s
			continue
		}
		// 非字符串值保留其 JSON 形式
		params[key] = string(value)
	}
	return params
}

// filePathParamKeys 工具参数中表示文件路径的键名
var filePathParamKeys = []string{"file_path", "path", "notebook_path"}

// extractFilePath 从工具参数中提取文件路径
func extractFilePath(params map[string]string) string {
	for _, key := range filePathParamKeys {
		if path, ok := params[key]; ok && path != "" {
			return path
		}
	}
	return ""
}

// DecodeProjectPath 还原项目目录名编码的原始路径
// 目录名形如 "-Users-me-code-myproject"，对应 "/Users/me/code/myproject"
func DecodeProjectPath(dirName string) string {
	if dirName == "" {
		return ""
	}
	if !strings.HasPrefix(dirName, "-") {
		return dirName
	}
	return strings.ReplaceAll(dirName, "-", "/")
}

// SessionIDFromFileName 从文件名推导会话标识（去掉 .jsonl 后缀）
func SessionIDFromFileName(fileName string) string {
	return strings.TrimSuffix(fileName, ".jsonl")
}

// formatLineRef 构造日志用的行定位串
func formatLineRef(filePath string, lineIndex int) string {
	return filePath + ":" + strconv.Itoa(lineIndex+1)
}
