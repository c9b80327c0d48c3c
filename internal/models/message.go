// internal/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role 消息发送方的角色
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// Message 表示对话中的一条消息
// 消息一旦创建即不可变，身份由 ID 决定
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Speaker   string    `json:"speaker,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHumanMessage 创建玩家消息
func NewHumanMessage(speaker, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleHuman,
		Speaker:   speaker,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAIMessage 创建角色消息
func NewAIMessage(speaker, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAI,
		Speaker:   speaker,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewSystemMessage 创建系统消息
func NewSystemMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleSystem,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// LastHumanMessage 返回消息列表中最后一条玩家消息
func LastHumanMessage(messages []Message) (Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleHuman {
			return messages[i], true
		}
	}
	return Message{}, false
}

// WindowMessages 返回最近 limit 条消息，顺序不变
func WindowMessages(messages []Message, limit int) []Message {
	if limit <= 0 || len(messages) == 0 {
		return nil
	}
	if len(messages) <= limit {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]Message, limit)
	copy(out, messages[len(messages)-limit:])
	return out
}
