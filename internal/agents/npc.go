// internal/agents/npc.go
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IronMeerkat/dionysus/internal/emotion"
	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/llm"
	"github.com/IronMeerkat/dionysus/internal/memory"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/stream"
	"github.com/IronMeerkat/dionysus/internal/tabletop"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// ModelClient 回合管线对模型服务的依赖
// 由 services.LLMService 满足
type ModelClient interface {
	CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error)
	CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, format *llm.ResponseFormat, out interface{}) error
}

// EventSink 接收回合执行期间产生的流事件，nil 表示不产生事件
type EventSink func(stream.Event)

// shouldRespondDecision 入口门控的结构化输出
// 指针字段用于识别缺失：缺失或无法解析时保守地视为"不回应"
type shouldRespondDecision struct {
	ShouldRespond *bool `json:"should_respond"`
}

var shouldRespondSchema = &llm.ResponseFormat{
	Name: "should_respond_decision",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"should_respond": {
				"type": "boolean",
				"description": "Whether the NPC should respond to the current message."
			}
		},
		"required": ["should_respond"],
		"additionalProperties": false
	}`),
	Strict: true,
}

var emotionDeltaSchema = &llm.ResponseFormat{
	Name: "emotional_state_delta",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"love":    {"type": "integer", "minimum": -20, "maximum": 20},
			"hate":    {"type": "integer", "minimum": -20, "maximum": 20},
			"fear":    {"type": "integer", "minimum": -20, "maximum": 20},
			"joy":     {"type": "integer", "minimum": -20, "maximum": 20},
			"sadness": {"type": "integer", "minimum": -20, "maximum": 20},
			"hope":    {"type": "integer", "minimum": -20, "maximum": 20}
		},
		"additionalProperties": false
	}`),
}

// NPCAgent 单个NPC的回合决策管线
// 阶段：入口门控 → 记忆/背景并行检索 → 情绪更新 → 规划 → 叙述
// 形状固定且很小，用显式阶段驱动而非通用图执行引擎
type NPCAgent struct {
	character *models.Character
	table     *tabletop.Tabletop
	emotions  *emotion.State
	model     ModelClient
	memory    memory.Gateway
	loreWorld string
	emit      EventSink

	// 流事件的外层命名空间，由蜂群在组装时设置
	namespace []string

	insertWG sync.WaitGroup
}

// NewNPCAgent 创建NPC回合管线
// 情绪状态来自注册表：同名角色在进程生命周期内共享同一实例
func NewNPCAgent(
	character *models.Character,
	table *tabletop.Tabletop,
	emotions *emotion.Registry,
	model ModelClient,
	gateway memory.Gateway,
	loreWorld string,
	emit EventSink,
) *NPCAgent {
	return &NPCAgent{
		character: character,
		table:     table,
		emotions:  emotions.For(character.Name),
		model:     model,
		memory:    gateway,
		loreWorld: loreWorld,
		emit:      emit,
		namespace: []string{character.Name},
	}
}

// Name 角色显示名
func (a *NPCAgent) Name() string {
	return a.character.Name
}

// SetNamespace 设置流事件的命名空间路径（蜂群组装时调用）
func (a *NPCAgent) SetNamespace(namespace []string) {
	a.namespace = append([]string{}, namespace...)
}

// Emotions 当前情绪状态（注册表实例）
func (a *NPCAgent) Emotions() *emotion.State {
	return a.emotions
}

func (a *NPCAgent) emitEvent(kind stream.EventKind, node, text string) {
	if a.emit == nil {
		return
	}
	a.emit(stream.Event{
		Kind:      kind,
		Namespace: a.namespace,
		Node:      node,
		Text:      text,
	})
}

func (a *NPCAgent) promptContext(state *TurnState) promptContext {
	player := ""
	if p := a.table.Player(); p != nil {
		player = p.Description()
	}
	return promptContext{
		Name:            a.character.Name,
		Description:     a.character.Description(),
		OtherCharacters: renderOtherCharacters(a.table.Characters(), a.character.Name),
		Player:          player,
		Location:        a.table.Location(),
		StoryBackground: a.table.StoryBackground(),
		Messages:        state.CombinedMessages(),
		EmotionalState:  a.emotions.Describe(),
		Thoughts:        state.Thoughts,
		Memories:        state.Memories,
		Lore:            state.Lore,
	}
}

// RunTurn 执行一次完整回合
// 返回的 TurnState.Delta 只包含本回合新产生的消息
// 除记忆写入和检索外，任何阶段的模型失败都会使整个回合失败
func (a *NPCAgent) RunTurn(ctx context.Context, input []models.Message) (*TurnState, error) {
	state := NewTurnState(input)

	respond, err := a.shouldRespond(ctx, state)
	if err != nil {
		return nil, err
	}
	if !respond {
		utils.GetLogger().Infof("🚫 %s 决定不回应", a.character.Name)
		return state, nil
	}
	utils.GetLogger().Infof("✅ %s 决定回应", a.character.Name)

	a.loadContext(ctx, state)

	if err := a.updateEmotions(ctx, state); err != nil {
		return nil, err
	}

	if err := a.plan(ctx, state); err != nil {
		return nil, err
	}

	if err := a.narrate(ctx, state); err != nil {
		return nil, err
	}

	return state, nil
}

// shouldRespond 入口门控
// 分类结果缺失或无法解析时保守地返回 false（宁静默不噪声）
func (a *NPCAgent) shouldRespond(ctx context.Context, state *TurnState) (bool, error) {
	system, user := shouldRespondPrompt(a.character.Name, a.character.Description(), state.CombinedMessages())

	var decision shouldRespondDecision
	err := a.model.CreateStructuredCompletion(ctx, user, system, shouldRespondSchema, &decision)
	if err != nil {
		if apperrors.IsValidationError(err) {
			utils.GetLogger().Warnf("⚠️ %s 的门控输出无法解析，保守地视为不回应: %v", a.character.Name, err)
			return false, nil
		}
		return false, err
	}

	if decision.ShouldRespond == nil {
		utils.GetLogger().Warnf("⚠️ %s 的门控输出缺少决策字段，保守地视为不回应", a.character.Name)
		return false, nil
	}

	return *decision.ShouldRespond, nil
}

// loadContext 并行检索情景记忆与世界背景
// 每路检索都是尽力而为：失败降级为空串并记录，绝不中止回合
func (a *NPCAgent) loadContext(ctx context.Context, state *TurnState) {
	lastHuman, ok := models.LastHumanMessage(state.Input())
	if !ok {
		return
	}
	query := lastHuman.Content

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		facts, err := a.memory.Search(gctx, query, []string{
			memory.MemoriesGroup(a.character.Name),
			memory.LoreGroup(a.loreWorld),
		}, 20)
		if err != nil {
			utils.GetLogger().Warnf("⚠️ %s 的情景记忆检索失败，降级为空: %v", a.character.Name, err)
			utils.GetMetricsCollector().IncrementCounter("turn.retrieval_degraded")
			return nil
		}
		state.Memories = memory.JoinFacts(facts)
		return nil
	})

	g.Go(func() error {
		facts, err := a.memory.Search(gctx, query, []string{
			memory.LoreGroup(a.loreWorld),
		}, 10)
		if err != nil {
			utils.GetLogger().Warnf("⚠️ 世界背景检索失败，降级为空: %v", err)
			utils.GetMetricsCollector().IncrementCounter("turn.retrieval_degraded")
			return nil
		}
		state.Lore = memory.JoinFacts(facts)
		return nil
	})

	// 两路都把错误吞在各自内部，这里只等待汇合
	_ = g.Wait()
}

// updateEmotions 情绪更新阶段
// 结构化输出允许缺失任意维度，缺失的维度不做隐式归零
func (a *NPCAgent) updateEmotions(ctx context.Context, state *TurnState) error {
	system, user := emotionsPrompt(a.promptContext(state))

	var delta emotion.Delta
	if err := a.model.CreateStructuredCompletion(ctx, user, system, emotionDeltaSchema, &delta); err != nil {
		return err
	}

	if delta.IsEmpty() {
		utils.GetLogger().Debugf("💖 %s 本回合情绪无变化", a.character.Name)
		return nil
	}

	a.emotions.Apply(delta)
	utils.GetLogger().Infof("💖 %s 的情绪更新为: %s", a.character.Name, strings.ReplaceAll(a.emotions.Describe(), "\n", ", "))
	return nil
}

// plan 规划阶段：产出内部思考，写入回合状态但不进入转录
func (a *NPCAgent) plan(ctx context.Context, state *TurnState) error {
	system, user := planPrompt(a.promptContext(state))

	resp, err := a.model.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       user,
		SystemPrompt: system,
		Temperature:  0.8,
		TopP:         0.95,
		MaxTokens:    1024,
	})
	if err != nil {
		return err
	}

	if resp.Text == "" {
		// 空思考可以容忍，后续阶段照常进行
		utils.GetLogger().Warnf("🧠 %s 的规划输出为空", a.character.Name)
	}

	state.Thoughts = resp.Text
	a.emitEvent(stream.KindAIChunk, stream.NodePlanner, resp.Text)
	return nil
}

// narrate 叙述阶段：流式产出角色本回合唯一的可见消息，
// 然后即发即弃地把回合窗口写入长期记忆
func (a *NPCAgent) narrate(ctx context.Context, state *TurnState) error {
	system, user := narratorPrompt(a.promptContext(state))

	chunks, err := a.model.StreamCompletion(ctx, llm.CompletionRequest{
		Prompt:       user,
		SystemPrompt: system,
		Temperature:  1,
		TopP:         1,
	})
	if err != nil {
		return err
	}

	var full strings.Builder
	done := false

	for chunk := range chunks {
		if chunk.Done {
			done = true
			// 结束块带有完整文本，覆盖累积值以吸收中途丢失的片段
			if chunk.Text != "" {
				full.Reset()
				full.WriteString(chunk.Text)
			}
			continue
		}
		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			a.emitEvent(stream.KindAIChunk, stream.NodeNarrator, chunk.Text)
		}
	}

	if !done {
		return apperrors.NewTransientError(
			fmt.Sprintf("%s 的叙述流在完成前中断", a.character.Name), nil)
	}

	message := models.NewAIMessage(a.character.Name, full.String())
	state.AppendDelta(message)

	a.submitMemories(state)

	return nil
}

// submitMemories 把回合消息窗口异步写入记忆网关
// 失败只记录：记忆写入永远不能让回合失败或阻塞玩家看到回复
func (a *NPCAgent) submitMemories(state *TurnState) {
	window := state.CombinedMessages()
	perspective := episodicPerspective(a.character.Name, a.character.Description())
	group := memory.MemoriesGroup(a.character.Name)
	world := a.loreWorld

	a.insertWG.Add(1)
	go func() {
		defer a.insertWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		err := a.memory.Insert(ctx, window, group, "session:"+world, perspective)
		if err != nil {
			utils.GetLogger().Errorf("❌ %s 的记忆写入失败: %v", a.character.Name, err)
			utils.GetMetricsCollector().IncrementCounter("turn.memory_insert_failures")
		}
	}()
}

// WaitForMemoryInserts 等待在途的记忆写入完成（测试与优雅关闭用）
func (a *NPCAgent) WaitForMemoryInserts() {
	a.insertWG.Wait()
}
