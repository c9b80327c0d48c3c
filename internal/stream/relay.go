// internal/stream/relay.go
package stream

import (
	"fmt"
	"log"

	"github.com/google/uuid"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// 传输层事件名
const (
	EventStreamStart = "stream_start"
	EventStreamToken = "stream_token"
	EventStreamEnd   = "stream_end"
	EventError       = "error"
)

// Emitter 面向单个已连接客户端的有序事件发送通道
// 同一目的地内保证按发送顺序到达
type Emitter interface {
	Emit(event string, payload map[string]interface{}) error
}

// Relay 消费图执行产生的流事件，按角色重建消息边界
// 并通过 Emitter 转发 start/token/end 事件
//
// 不变式：每次发言者切换恰好打开一条新消息；两条已打开消息的
// token 在发出顺序上绝不交错；每条打开的消息最终都会被关闭，
// 包括流异常中断的情况
type Relay struct {
	emitter    Emitter
	characters []string

	currentMessageID string
	currentSpeaker   string
}

// NewRelay 创建流归属转发器
// characters 是本会话的角色显示名列表，按注册顺序
func NewRelay(emitter Emitter, characters []string) *Relay {
	return &Relay{
		emitter:    emitter,
		characters: characters,
	}
}

// Process 排空事件通道直到关闭
// 任何处理异常：先向客户端发一条通用错误事件，再关闭已打开的
// 消息，然后停止。关闭动作在 defer 中执行，覆盖所有退出路径
func (r *Relay) Process(events <-chan Event) {
	defer r.closeOpenMessage()

	for event := range events {
		if err := r.handle(event); err != nil {
			if apperrors.IsAttributionError(err) {
				// 归属失败：宁可丢弃也不错挂到别的角色名下
				log.Printf("❌ %v", err)
				utils.GetMetricsCollector().IncrementCounter("stream.attribution_failures")
				continue
			}
			log.Printf("💥 流处理中断: %v", err)
			// 尽力通知客户端，失败也要继续走关闭路径
			_ = r.emitter.Emit(EventError, map[string]interface{}{
				"message": "An error occurred while processing the response.",
			})
			return
		}
	}
}

func (r *Relay) handle(event Event) error {
	switch event.Kind {
	case KindAIChunk:
		return r.handleAIChunk(event)
	case KindToolChunk:
		r.handleToolChunk(event)
		return nil
	default:
		// 玩家回显等事件不需要转发
		return nil
	}
}

func (r *Relay) handleAIChunk(event Event) error {
	speaker, ok := ResolveSpeaker(r.characters, event.Path())
	if !ok {
		return apperrors.NewAttributionError(
			fmt.Sprintf("无法解析流事件的发言角色: path=%v node=%s", event.Path(), event.Node), nil)
	}

	switch event.Node {
	case NodeNarrator:
		if speaker != r.currentSpeaker || r.currentMessageID == "" {
			if err := r.startNewMessage(speaker); err != nil {
				return err
			}
		}
		if event.Text != "" {
			return r.emitter.Emit(EventStreamToken, map[string]interface{}{
				"messageId": r.currentMessageID,
				"token":     event.Text,
			})
		}
	case NodePlanner:
		// 规划阶段的内容是内部推理痕迹，可归属但默认不展示
		log.Printf("🧠 %s 的规划片段（不转发）", speaker)
	}

	return nil
}

func (r *Relay) handleToolChunk(event Event) {
	speaker, ok := ResolveSpeaker(r.characters, event.Path())
	if !ok {
		speaker = "?"
	}
	preview := event.Text
	if len(preview) > 80 {
		preview = preview[:80]
	}
	log.Printf("🔧 %s 的工具结果片段: %s", speaker, preview)
}

// startNewMessage 先关闭当前消息，再以新 ID 打开下一条
func (r *Relay) startNewMessage(speaker string) error {
	if err := r.closeOpenMessage(); err != nil {
		return err
	}

	r.currentMessageID = uuid.NewString()
	r.currentSpeaker = speaker

	return r.emitter.Emit(EventStreamStart, map[string]interface{}{
		"messageId": r.currentMessageID,
		"name":      speaker,
	})
}

// closeOpenMessage 为已打开的消息补发 stream_end，幂等
func (r *Relay) closeOpenMessage() error {
	if r.currentMessageID == "" {
		return nil
	}

	messageID := r.currentMessageID
	r.currentMessageID = ""
	r.currentSpeaker = ""

	return r.emitter.Emit(EventStreamEnd, map[string]interface{}{
		"messageId": messageID,
	})
}
