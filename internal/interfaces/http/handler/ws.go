package handler

import (
	"log/slog"
	"net/http"

	infraws "github.com/consearch/backend/internal/infrastructure/websocket"
	"github.com/consearch/backend/internal/infrastructure/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 本地单用户服务，不做跨源限制
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler 进度推送 WebSocket 处理器
type WSHandler struct {
	hub    *infraws.Hub
	logger *slog.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(hub *infraws.Hub) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: log.NewModuleLogger("http", "ws_handler"),
	}
}

// Subscribe 订阅进度主题
// GET /ws?topic=embedding.progress
func (h *WSHandler) Subscribe(c *gin.Context) {
	topic := c.Query("topic")
	if topic == "" {
		topic = infraws.TopicEmbeddingProgress
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &infraws.Connection{
		Topic: topic,
		Send:  make(chan []byte, 16),
	}
	h.hub.Register(client)

	// 写循环：Send 被 Hub 关闭时退出
	go func() {
		defer conn.Close()
		for data := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				break
			}
		}
	}()

	// 读循环只用于感知连接断开
	go func() {
		defer h.hub.Unregister(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
