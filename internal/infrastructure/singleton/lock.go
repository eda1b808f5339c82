// Package singleton 通过端口占用保证同一时刻只运行一个实例
package singleton

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// healthCheckTimeout 健康检查超时时间
const healthCheckTimeout = 2 * time.Second

// CheckAndLock 尝试抢占监听端口
// 端口可用时返回 listener（调用方负责关闭，实际监听交给 HTTP 服务器）；
// 已有健康实例占用时返回 (nil, nil)，调用方应直接退出；
// 端口被占用但健康检查失败时返回错误（可能是残留的死进程）
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
	}

	if isInstanceHealthy(port) {
		return nil, nil
	}
	return nil, fmt.Errorf("port %s is taken but the occupant failed the health check", port)
}

// isAddrInUse 判断监听失败是否因为地址已被占用
func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows 下 errno 不同，WSAEADDRINUSE = 10048
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == 10048
	}
	return false
}

// isInstanceHealthy 探测占用端口的实例是否响应健康检查
func isInstanceHealthy(port string) bool {
	client := &http.Client{Timeout: healthCheckTimeout}

	resp, err := client.Get(fmt.Sprintf("http://localhost%s/health", port))
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
