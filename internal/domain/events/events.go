// Package events 定义领域事件类型和事件总线接口
// 文件监听器通过事件总线将文件变更通知给摄取服务
package events

import "time"

// EventType 事件类型标识
type EventType string

const (
	// SessionFileCreated 会话文件创建事件
	SessionFileCreated EventType = "session.file.created"
	// SessionFileModified 会话文件修改事件（追加写入）
	SessionFileModified EventType = "session.file.modified"
	// ProjectDirCreated 项目目录创建事件
	// 新项目目录需要被动态加入监听
	ProjectDirCreated EventType = "project.dir.created"
)

// Event 领域事件接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}

// Handler 事件处理器接口
type Handler interface {
	// HandleEvent 处理事件
	// 返回 error 仅用于日志记录，不会触发重试
	HandleEvent(event Event) error
}

// HandlerFunc 函数类型的处理器适配器
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler 接口
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// EventBus 事件总线接口
type EventBus interface {
	// Subscribe 订阅特定类型的事件，返回取消订阅函数
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())

	// SubscribeMultiple 订阅多个类型的事件，返回取消所有订阅的函数
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())

	// Publish 异步发布事件，分发到所有匹配的订阅者
	Publish(event Event)

	// Close 关闭事件总线，等待已发布事件处理完成
	Close()
}
