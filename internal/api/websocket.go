// internal/api/websocket.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

// WebSocketClient 一个已连接玩家的 WebSocket 连接
// 发送队列由单个写协程排空，保证事件按入队顺序到达，
// 因此它可以直接充当流转发器的 Emitter
// send 只入队从不关闭，退出统一通过 done 广播，
// 避免回合协程与写协程之间向已关闭通道发送的竞态
type WebSocketClient struct {
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	done      chan struct{}
	closed    int32
	lastPing  time.Time
	createdAt time.Time
}

// Emit 把事件编码后放入发送队列
// 队列满视为连接已跟不上，关闭连接而不是阻塞整轮
func (client *WebSocketClient) Emit(event string, payload map[string]interface{}) error {
	if client.IsClosed() {
		return nil
	}

	envelope := map[string]interface{}{"event": event}
	for key, value := range payload {
		envelope[key] = value
	}
	msgBytes, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	select {
	case client.send <- msgBytes:
		return nil
	case <-client.done:
		return nil
	default:
		log.Printf("⚠️ 会话 %s 的发送队列已满，关闭连接", client.sessionID)
		client.Close()
		return nil
	}
}

// Close 安全关闭客户端连接并广播退出信号
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// UpdatePing 更新最后ping时间
func (client *WebSocketClient) UpdatePing() {
	client.lastPing = time.Now()
}

// IsExpired 检查连接是否超时
func (client *WebSocketClient) IsExpired(timeout time.Duration) bool {
	if timeout <= 0 {
		return true
	}
	return time.Since(client.lastPing) > timeout
}

// SendError 发送错误事件到客户端
func (client *WebSocketClient) SendError(errorMsg string) {
	_ = client.Emit("error", map[string]interface{}{
		"message":   errorMsg,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// WebSocketManager 管理所有 WebSocket 连接，按会话分组
type WebSocketManager struct {
	connections map[string]map[*websocket.Conn]*WebSocketClient // sessionID -> connections
	register    chan *WebSocketClient
	unregister  chan *WebSocketClient
	cleanup     chan bool
	mutex       sync.RWMutex
	pingTimeout time.Duration
}

// NewWebSocketManager 创建连接管理器并启动主循环
func NewWebSocketManager() *WebSocketManager {
	manager := &WebSocketManager{
		connections: make(map[string]map[*websocket.Conn]*WebSocketClient),
		register:    make(chan *WebSocketClient, 256),
		unregister:  make(chan *WebSocketClient, 256),
		cleanup:     make(chan bool, 1),
		pingTimeout: 60 * time.Second,
	}
	go manager.run()
	return manager
}

func (manager *WebSocketManager) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-manager.register:
			manager.registerClient(client)

		case client := <-manager.unregister:
			manager.unregisterClient(client)

		case <-ticker.C:
			manager.cleanupExpiredConnections()

		case <-manager.cleanup:
			manager.shutdown()
			return
		}
	}
}

func (manager *WebSocketManager) registerClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if manager.connections[client.sessionID] == nil {
		manager.connections[client.sessionID] = make(map[*websocket.Conn]*WebSocketClient)
	}
	manager.connections[client.sessionID][client.conn] = client
	client.UpdatePing()

	log.Printf("✅ WebSocket 客户端已连接到会话 %s", client.sessionID)
}

func (manager *WebSocketManager) unregisterClient(client *WebSocketClient) {
	if client == nil {
		return
	}

	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	if connections, exists := manager.connections[client.sessionID]; exists {
		delete(connections, client.conn)
		if len(connections) == 0 {
			delete(manager.connections, client.sessionID)
		}
	}

	if !client.IsClosed() {
		client.Close()
	}

	log.Printf("🔌 WebSocket 客户端已断开连接 (会话: %s)", client.sessionID)
}

func (manager *WebSocketManager) cleanupExpiredConnections() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	for sessionID, connections := range manager.connections {
		for conn, client := range connections {
			if client.IsClosed() || client.IsExpired(manager.pingTimeout) {
				delete(connections, conn)
				if !client.IsClosed() {
					client.Close()
				}
			}
		}
		if len(connections) == 0 {
			delete(manager.connections, sessionID)
		}
	}
}

// Shutdown 优雅关闭管理器
func (manager *WebSocketManager) Shutdown() {
	select {
	case manager.cleanup <- true:
	default:
	}
}

func (manager *WebSocketManager) shutdown() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()

	log.Println("🛑 正在关闭 WebSocket 管理器...")
	for _, connections := range manager.connections {
		for _, client := range connections {
			client.Close()
		}
	}
	manager.connections = make(map[string]map[*websocket.Conn]*WebSocketClient)
	log.Println("✅ WebSocket 管理器已关闭")
}

// GetStatus 获取管理器状态
func (manager *WebSocketManager) GetStatus() map[string]interface{} {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	sessions := make(map[string]interface{})
	totalConnections := 0

	for sessionID, connections := range manager.connections {
		active := 0
		for _, client := range connections {
			if client != nil && !client.IsClosed() {
				active++
			}
		}
		sessions[sessionID] = map[string]interface{}{"client_count": active}
		totalConnections += active
	}

	return map[string]interface{}{
		"total_sessions":    len(manager.connections),
		"total_connections": totalConnections,
		"sessions":          sessions,
	}
}
