// internal/api/websocket_handlers.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/IronMeerkat/dionysus/internal/services"
)

// WebSocketHandler 处理 WebSocket 相关的 HTTP 请求
type WebSocketHandler struct {
	manager  *WebSocketManager
	sessions *services.SessionService
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(manager *WebSocketManager, sessions *services.SessionService) *WebSocketHandler {
	return &WebSocketHandler{
		manager:  manager,
		sessions: sessions,
	}
}

// SessionWebSocket 处理会话 WebSocket 连接
// 连接后客户端通过 send_message 事件投递玩家消息，
// 一轮内NPC的回复以 stream_start/stream_token/stream_end 流回
func (wh *WebSocketHandler) SessionWebSocket(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(400, gin.H{"error": "缺少会话ID"})
		return
	}

	session, ok := wh.sessions.GetSession(sessionID)
	if !ok {
		c.JSON(404, gin.H{"error": "会话不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ WebSocket 升级失败: %v", err)
		return
	}

	client := &WebSocketClient{
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	select {
	case wh.manager.register <- client:
	case <-time.After(1 * time.Second):
		log.Printf("⚠️ 客户端注册超时，关闭连接")
		conn.Close()
		return
	}

	wh.sendWelcome(client, session)

	go wh.handleWebSocketWrites(client)
	wh.handleWebSocketReads(client, session)
}

// handleWebSocketReads 处理 WebSocket 读取
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient, session *services.Session) {
	defer func() {
		if !client.IsClosed() {
			select {
			case wh.manager.unregister <- client:
			case <-time.After(1 * time.Second):
				log.Printf("⚠️ 读取协程关闭时注销超时")
			}
		}
	}()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if client.IsClosed() {
			break
		}

		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			break
		}

		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("⚠️ JSON解析失败: %v", err)
			continue
		}

		client.UpdatePing()
		wh.handleMessage(client, session, message)
	}
}

// handleWebSocketWrites 排空发送队列并维持心跳
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ WebSocket 写入失败: %v", err)
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ WebSocket ping 失败: %v", err)
				return
			}
			client.UpdatePing()
		}
	}
}

// handleMessage 按事件类型分发收到的消息
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, session *services.Session, message map[string]interface{}) {
	event, ok := message["event"].(string)
	if !ok {
		client.SendError("消息缺少 event 字段")
		return
	}

	switch event {
	case "send_message":
		wh.handleSendMessage(client, session, message)
	case "ping":
		wh.handlePing(client)
	default:
		client.SendError("未知的事件类型: " + event)
	}
}

// handleSendMessage 处理玩家消息：在独立协程中驱动一整轮，
// 流事件经转发器直接写回这个客户端
func (wh *WebSocketHandler) handleSendMessage(client *WebSocketClient, session *services.Session, message map[string]interface{}) {
	text, ok := message["message"].(string)
	if !ok || text == "" {
		client.SendError("消息内容不能为空")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := session.RunRound(ctx, text, client); err != nil {
			log.Printf("❌ 会话 %s 的回合处理失败: %v", session.ID, err)
			client.SendError("处理消息时发生错误")
		}
	}()
}

// handlePing 处理ping消息
func (wh *WebSocketHandler) handlePing(client *WebSocketClient) {
	client.UpdatePing()
	_ = client.Emit("pong", map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// sendWelcome 发送欢迎消息
func (wh *WebSocketHandler) sendWelcome(client *WebSocketClient, session *services.Session) {
	_ = client.Emit("connected", map[string]interface{}{
		"session_id": session.ID,
		"characters": session.Table.CharacterNames(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
