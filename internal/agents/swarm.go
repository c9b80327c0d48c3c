// internal/agents/swarm.go
package agents

import (
	"context"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// SwarmNamespace 蜂群成员流事件命名空间的外层段
const SwarmNamespace = "npc_swarm"

// Swarm 固定顺序的NPC菊花链
// 每个成员看到原始输入加上本轮更早成员产生的增量，
// 单个成员失败只影响自己，本轮其余成员照常执行
type Swarm struct {
	agents []*NPCAgent
}

// NewSwarm 按给定顺序组装蜂群并为成员分配流命名空间
// 成员顺序即本轮的执行顺序
func NewSwarm(agents []*NPCAgent) *Swarm {
	s := &Swarm{agents: agents}
	if len(agents) == 1 {
		// 单成员不套外层命名空间，事件路径只含角色自己的节点
		agents[0].SetNamespace(nil)
		return s
	}
	for _, agent := range agents {
		agent.SetNamespace([]string{SwarmNamespace, agent.Name()})
	}
	return s
}

// AddAgent 在链尾追加成员，从下一轮开始生效
// 只能在两轮之间调用
func (s *Swarm) AddAgent(agent *NPCAgent) {
	s.agents = append(s.agents, agent)
	if len(s.agents) == 1 {
		agent.SetNamespace(nil)
		return
	}
	// 从单成员长到多成员时给所有成员补上外层命名空间
	for _, member := range s.agents {
		member.SetNamespace([]string{SwarmNamespace, member.Name()})
	}
}

// Agents 按执行顺序返回成员
func (s *Swarm) Agents() []*NPCAgent {
	return append([]*NPCAgent{}, s.agents...)
}

// CharacterNames 成员角色名，顺序与执行顺序一致
func (s *Swarm) CharacterNames() []string {
	names := make([]string, 0, len(s.agents))
	for _, agent := range s.agents {
		names = append(names, agent.Name())
	}
	return names
}

// RunRound 执行一轮：依次驱动每个成员的完整回合
// 返回本轮所有成员新产生消息的合并增量，不含输入本身
func (s *Swarm) RunRound(ctx context.Context, input []models.Message) []models.Message {
	seen := make(map[string]bool, len(input))
	for _, msg := range input {
		seen[msg.ID] = true
	}

	roundDelta := make([]models.Message, 0, len(s.agents))

	for _, agent := range s.agents {
		combined := make([]models.Message, 0, len(input)+len(roundDelta))
		combined = append(combined, input...)
		combined = append(combined, roundDelta...)

		state, err := agent.RunTurn(ctx, combined)
		if err != nil {
			// 瞬态的外部失败只是告警，其余按真实错误记录
			if apperrors.IsTransientError(err) {
				utils.GetLogger().Warnf("⚠️ %s 的回合瞬态失败，本轮其余成员继续: %v", agent.Name(), err)
			} else {
				utils.GetLogger().Errorf("❌ %s 的回合失败，本轮其余成员继续: %v", agent.Name(), err)
			}
			utils.GetMetricsCollector().IncrementCounter("swarm.turn_failures")
			continue
		}

		for _, msg := range state.Delta {
			// 增量必须与输入和已收集消息不相交，重叠说明上游把历史混进了增量
			if seen[msg.ID] {
				utils.GetLogger().Errorf("❌ %s 的回合增量包含已知消息 %s，已丢弃", agent.Name(), msg.ID)
				utils.GetMetricsCollector().IncrementCounter("swarm.delta_overlaps")
				continue
			}
			seen[msg.ID] = true
			roundDelta = append(roundDelta, msg)
		}
	}

	return roundDelta
}
