package events

import "time"

// SessionFileEvent 会话文件变更事件
// 当项目目录下的 *.jsonl 会话日志被创建或追加写入时触发
type SessionFileEvent struct {
	// EventType 事件类型（created/modified）
	EventType EventType
	// SessionID 会话 ID（文件名去掉 .jsonl 后缀）
	SessionID string
	// ProjectDir 项目目录名（如 "-Users-me-code-myproject"）
	ProjectDir string
	// FilePath 文件完整路径
	FilePath string
	// FileSize 文件大小（字节）
	FileSize int64
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *SessionFileEvent) Type() EventType {
	return e.EventType
}

// Timestamp 实现 Event 接口
func (e *SessionFileEvent) Timestamp() time.Time {
	return e.EventTime
}

// ProjectDirEvent 项目目录创建事件
// 监听器发现新项目目录时触发，用于动态注册监听
type ProjectDirEvent struct {
	// DirPath 新目录的完整路径
	DirPath string
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *ProjectDirEvent) Type() EventType {
	return ProjectDirCreated
}

// Timestamp 实现 Event 接口
func (e *ProjectDirEvent) Timestamp() time.Time {
	return e.EventTime
}
