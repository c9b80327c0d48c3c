// internal/models/message_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessagesHaveUniqueIDs(t *testing.T) {
	a := NewHumanMessage("Ilya", "hello")
	b := NewHumanMessage("Ilya", "hello")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, RoleHuman, a.Role)
	assert.Equal(t, "Ilya", a.Speaker)
}

func TestLastHumanMessage(t *testing.T) {
	msgs := []Message{
		NewHumanMessage("Ilya", "first"),
		NewAIMessage("Aria", "reply"),
		NewHumanMessage("Ilya", "second"),
		NewAIMessage("Boros", "reply two"),
	}

	last, ok := LastHumanMessage(msgs)
	require.True(t, ok)
	assert.Equal(t, "second", last.Content)

	_, ok = LastHumanMessage([]Message{NewAIMessage("Aria", "only ai")})
	assert.False(t, ok)

	_, ok = LastHumanMessage(nil)
	assert.False(t, ok)
}

func TestWindowMessages(t *testing.T) {
	msgs := make([]Message, 0, 15)
	for i := 0; i < 15; i++ {
		msgs = append(msgs, NewAIMessage("Aria", "m"))
	}

	windowed := WindowMessages(msgs, 12)
	require.Len(t, windowed, 12)
	// 保留的是最近的消息，顺序不变
	assert.Equal(t, msgs[3].ID, windowed[0].ID)
	assert.Equal(t, msgs[14].ID, windowed[11].ID)

	// 不足窗口时全量返回
	assert.Len(t, WindowMessages(msgs[:5], 12), 5)
	assert.Nil(t, WindowMessages(msgs, 0))
}

func TestConversationRejectsDuplicateIDs(t *testing.T) {
	player := NewPlayer("Ilya", "a traveler")
	conv := NewConversation("s1", player, []*Character{NewCharacter("Aria", "a bard")})

	msg := NewHumanMessage("Ilya", "hello")
	assert.True(t, conv.AppendMessage(msg))
	assert.False(t, conv.AppendMessage(msg))

	require.Len(t, conv.Messages, 1)
	assert.Equal(t, 0, conv.DuplicateIDCount())
}

func TestConversationDuplicateIDCount(t *testing.T) {
	conv := NewConversation("s1", NewPlayer("Ilya", "d"), nil)
	msg := NewHumanMessage("Ilya", "hello")

	// 绕过 AppendMessage 直接注入重复，模拟损坏的转录
	conv.Messages = append(conv.Messages, msg, msg, msg)
	assert.Equal(t, 2, conv.DuplicateIDCount())
}

func TestCharacterDescriptionVersioning(t *testing.T) {
	c := NewCharacter("Aria", "a bard")
	assert.Equal(t, "a bard", c.Description())
	assert.Equal(t, 1, c.DescriptionVersionNumber())

	c.AddDescription("a bard with a broken lute")
	assert.Equal(t, "a bard with a broken lute", c.Description())
	assert.Equal(t, 2, c.DescriptionVersionNumber())

	// 旧版本仍可读取
	old, ok := c.DescriptionAtVersion(1)
	require.True(t, ok)
	assert.Equal(t, "a bard", old)

	_, ok = c.DescriptionAtVersion(3)
	assert.False(t, ok)
}
