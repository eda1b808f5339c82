// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 请求标识的响应头名称
const RequestIDHeader = "X-Request-ID"

// RequestID 为每个请求分配（或透传）唯一标识，便于日志关联
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}
