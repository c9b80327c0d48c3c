// internal/agents/dungeon_master.go
package agents

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/stream"
	"github.com/IronMeerkat/dionysus/internal/tabletop"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

func humanEvent(msg models.Message) stream.Event {
	return stream.Event{Kind: stream.KindHuman, Node: "human", Text: msg.Content}
}

// TranscriptSink 回合结束后落盘会话转录的依赖
// 由 storage.TranscriptStore 满足
type TranscriptSink interface {
	SaveConversation(conversation *models.Conversation) error
}

// DungeonMaster 会话级编排器
// 接收玩家消息，驱动蜂群执行一轮，然后把玩家消息与本轮
// 所有NPC消息一并写入桌面缓冲区和持久转录
type DungeonMaster struct {
	table        *tabletop.Tabletop
	swarm        *Swarm
	conversation *models.Conversation
	transcripts  TranscriptSink
	emitHuman    EventSink
}

// NewDungeonMaster 创建会话编排器
// emitHuman 可为 nil，非 nil 时玩家消息会作为事件回显给流层
func NewDungeonMaster(
	table *tabletop.Tabletop,
	swarm *Swarm,
	conversation *models.Conversation,
	transcripts TranscriptSink,
	emitHuman EventSink,
) *DungeonMaster {
	return &DungeonMaster{
		table:        table,
		swarm:        swarm,
		conversation: conversation,
		transcripts:  transcripts,
		emitHuman:    emitHuman,
	}
}

// Conversation 当前会话的转录
func (dm *DungeonMaster) Conversation() *models.Conversation {
	return dm.conversation
}

// ProcessMessage 处理一条玩家消息并完成一整轮
//
// 流程：构造带玩家名的人类消息 → 以桌面历史加该消息驱动蜂群 →
// 把消息与本轮增量追加到桌面缓冲区和转录 → 落盘
// 返回本轮进入转录的全部新消息（含玩家消息本身）
func (dm *DungeonMaster) ProcessMessage(ctx context.Context, text string) ([]models.Message, error) {
	playerName := ""
	if p := dm.table.Player(); p != nil {
		playerName = p.Name
	}
	human := models.NewHumanMessage(playerName, text)

	if dm.emitHuman != nil {
		dm.emitHuman(humanEvent(human))
	}

	input := append(dm.table.Messages(), human)
	roundDelta := dm.swarm.RunRound(ctx, input)

	newMessages := make([]models.Message, 0, len(roundDelta)+1)
	newMessages = append(newMessages, human)
	newMessages = append(newMessages, roundDelta...)

	dm.persist(newMessages)
	return newMessages, nil
}

// persist 把本轮消息写入桌面缓冲区与持久转录
// 缺失ID的消息在此补发新ID，防止上游遗漏导致整批互撞
// 重复的消息 ID 只记录，绝不让已经展示给玩家的一轮失败
func (dm *DungeonMaster) persist(newMessages []models.Message) {
	for i := range newMessages {
		if newMessages[i].ID == "" {
			newMessages[i].ID = uuid.NewString()
		}
	}

	dm.table.ExtendMessages(newMessages)

	for _, msg := range newMessages {
		if !dm.conversation.AppendMessage(msg) {
			dup := apperrors.NewDataIntegrityError(
				fmt.Sprintf("转录中已存在消息 %s，跳过追加", msg.ID), nil)
			utils.GetLogger().Warnf("⚠️ %v", dup)
		}
	}

	if dup := dm.conversation.DuplicateIDCount(); dup > 0 {
		utils.GetLogger().Warnf("⚠️ 会话 %s 的转录含 %d 个重复ID", dm.conversation.ID, dup)
		utils.GetMetricsCollector().IncrementCounter("transcript.duplicate_ids")
	}

	if dm.transcripts == nil {
		return
	}
	if err := dm.transcripts.SaveConversation(dm.conversation); err != nil {
		// 数据完整性类失败是诊断性告警，其余按真实持久化失败处理
		if apperrors.IsDataIntegrityError(err) {
			utils.GetLogger().Warnf("⚠️ 会话 %s 的转录未落盘: %v", dm.conversation.ID, err)
		} else {
			utils.GetLogger().Errorf("❌ 保存会话 %s 的转录失败: %v", dm.conversation.ID, err)
		}
	}
}

// WaitForMemoryInserts 等待所有成员在途的记忆写入（优雅关闭用）
func (dm *DungeonMaster) WaitForMemoryInserts() {
	for _, agent := range dm.swarm.Agents() {
		agent.WaitForMemoryInserts()
	}
}
