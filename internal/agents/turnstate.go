// internal/agents/turnstate.go
package agents

import (
	"github.com/IronMeerkat/dionysus/internal/models"
)

// 提示词消息窗口大小
const messageWindow = 12

// TurnState 单次NPC回合的瞬态状态，回合结束即丢弃
// Delta 只包含本回合新产生的消息，绝不回显输入历史——
// 上层按"追加"语义合并，回显会导致转录重复
type TurnState struct {
	// 回合输入：本回合开始时的消息缓冲（含同回合中先行角色的发言）
	input []models.Message

	// Delta 本回合新产生的消息
	Delta []models.Message

	// Thoughts 规划阶段的内部思考，不进入转录
	Thoughts string

	// Memories / Lore 检索阶段写入的自由文本上下文
	Memories string
	Lore     string
}

// NewTurnState 以输入消息缓冲创建回合状态
func NewTurnState(input []models.Message) *TurnState {
	snapshot := make([]models.Message, len(input))
	copy(snapshot, input)
	return &TurnState{input: snapshot}
}

// Input 回合输入缓冲的拷贝
func (s *TurnState) Input() []models.Message {
	out := make([]models.Message, len(s.input))
	copy(out, s.input)
	return out
}

// CombinedMessages 输入缓冲与本回合增量的合并视图，
// 窗口化为最近 messageWindow 条，用于提示词构建
func (s *TurnState) CombinedMessages() []models.Message {
	combo := make([]models.Message, 0, len(s.input)+len(s.Delta))
	combo = append(combo, s.input...)
	combo = append(combo, s.Delta...)
	return models.WindowMessages(combo, messageWindow)
}

// AppendDelta 记录本回合新产生的消息
func (s *TurnState) AppendDelta(msg models.Message) {
	s.Delta = append(s.Delta, msg)
}
