// Package websocket 管理进度推送的 WebSocket 连接
package websocket

import (
	"encoding/json"
	"sync"
)

// 进度主题
const (
	// TopicIndexProgress 全量索引进度
	TopicIndexProgress = "index.progress"
	// TopicEmbeddingProgress embedding 补齐进度
	TopicEmbeddingProgress = "embedding.progress"
)

// Hub WebSocket 连接管理中心
type Hub struct {
	// 按主题分组的连接
	topics map[string]map[*Connection]bool
	// 注册连接
	register chan *Connection
	// 注销连接
	unregister chan *Connection
	// 广播消息
	broadcast chan *Message
	mu        sync.RWMutex
}

// Connection WebSocket 连接
type Connection struct {
	Topic string
	Send  chan []byte
}

// Message 消息
type Message struct {
	Topic string
	Data  []byte
}

// ProgressPayload 进度消息体
type ProgressPayload struct {
	Topic   string `json:"topic"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Detail  string `json:"detail,omitempty"`
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		topics:     make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Message),
	}
}

// Run 运行 Hub（需要在 goroutine 中运行）
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.topics[conn.Topic] == nil {
				h.topics[conn.Topic] = make(map[*Connection]bool)
			}
			h.topics[conn.Topic][conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if topic, ok := h.topics[conn.Topic]; ok {
				if _, ok := topic[conn]; ok {
					delete(topic, conn)
					close(conn.Send)
					if len(topic) == 0 {
						delete(h.topics, conn.Topic)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			// 发不出去的慢连接会被当场移除，这里修改 map，必须持写锁
			h.mu.Lock()
			if topic, ok := h.topics[msg.Topic]; ok {
				for conn := range topic {
					select {
					case conn.Send <- msg.Data:
					default:
						close(conn.Send)
						delete(topic, conn)
					}
				}
				if len(topic) == 0 {
					delete(h.topics, msg.Topic)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Start 启动 Hub（启动后台 goroutine）
func (h *Hub) Start() {
	go h.Run()
}

// Register 注册连接
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister 注销连接
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// BroadcastToTopic 向指定主题广播消息
func (h *Hub) BroadcastToTopic(topic string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	h.broadcast <- &Message{
		Topic: topic,
		Data:  jsonData,
	}
	return nil
}

// BroadcastProgress 广播进度消息
func (h *Hub) BroadcastProgress(topic string, current, total int, detail string) {
	// 没有订阅者时 broadcast 通道仍会被 Run 消费，不会阻塞
	_ = h.BroadcastToTopic(topic, &ProgressPayload{
		Topic:   topic,
		Current: current,
		Total:   total,
		Detail:  detail,
	})
}
