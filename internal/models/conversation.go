// internal/models/conversation.go
package models

import (
	"time"
)

// Conversation 表示玩家与一组角色之间的一次对话
// 消息序列只追加；回合期间缓存，回合结束时写入持久化存储
type Conversation struct {
	ID         string       `json:"id"`
	Title      string       `json:"title,omitempty"`
	Player     *Player      `json:"player"`
	Characters []*Character `json:"characters"`
	Messages   []Message    `json:"messages"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewConversation 创建一次新对话
func NewConversation(id string, player *Player, characters []*Character) *Conversation {
	now := time.Now().UTC()
	title := ""
	if player != nil {
		names := make([]string, 0, len(characters))
		for _, c := range characters {
			names = append(names, c.Name)
		}
		title = player.Name
		for i, n := range names {
			if i == 0 {
				title += " " + n
			} else {
				title += ", " + n
			}
		}
	}
	return &Conversation{
		ID:         id,
		Title:      title,
		Player:     player,
		Characters: characters,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AppendMessage 追加一条消息
// 重复的消息 ID 会被拒绝并返回 false，调用方负责记录数据完整性告警
func (c *Conversation) AppendMessage(msg Message) bool {
	for _, existing := range c.Messages {
		if existing.ID == msg.ID {
			return false
		}
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
	return true
}

// DuplicateIDCount 统计整个转录中重复出现的消息 ID 数量
// 仅用于诊断，不是硬性失败条件
func (c *Conversation) DuplicateIDCount() int {
	seen := make(map[string]int, len(c.Messages))
	for _, m := range c.Messages {
		seen[m.ID]++
	}
	duplicates := 0
	for _, n := range seen {
		if n > 1 {
			duplicates += n - 1
		}
	}
	return duplicates
}

// CharacterNames 返回参与对话的角色名称，按注册顺序
func (c *Conversation) CharacterNames() []string {
	names := make([]string, 0, len(c.Characters))
	for _, ch := range c.Characters {
		names = append(names, ch.Name)
	}
	return names
}
