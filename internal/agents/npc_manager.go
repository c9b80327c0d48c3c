// internal/agents/npc_manager.go
package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/IronMeerkat/dionysus/internal/llm"
	"github.com/IronMeerkat/dionysus/internal/memory"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/stream"
	"github.com/IronMeerkat/dionysus/internal/tabletop"
	"github.com/IronMeerkat/dionysus/internal/tools"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// maxToolIterations 工具循环的迭代上限，防止模型反复调用不收敛
const maxToolIterations = 5

// NPCManager 管理会话角色阵容的工具循环代理
// 观察对话，判断故事是否把新的具名角色带上了台面，
// 需要时通过工具创建角色并接入当前会话
type NPCManager struct {
	table     *tabletop.Tabletop
	model     ModelClient
	memory    memory.Gateway
	registry  *tools.Registry
	loreWorld string
	emit      EventSink
}

// NewNPCManager 创建角色阵容管理代理
func NewNPCManager(
	table *tabletop.Tabletop,
	model ModelClient,
	gateway memory.Gateway,
	registry *tools.Registry,
	loreWorld string,
	emit EventSink,
) *NPCManager {
	return &NPCManager{
		table:     table,
		model:     model,
		memory:    gateway,
		registry:  registry,
		loreWorld: loreWorld,
		emit:      emit,
	}
}

// toolCall 模型产出的工具调用
type toolCall struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// Run 执行一次阵容检查循环
// 检索相关背景后进入工具循环：模型要么发出一个JSON工具调用，
// 要么给出纯文本结论。工具结果回馈给下一轮，直到结论或达到上限
func (m *NPCManager) Run(ctx context.Context, messages []models.Message) error {
	memories := m.loadLore(ctx, messages)

	player := ""
	if p := m.table.Player(); p != nil {
		player = p.Description()
	}
	pctx := promptContext{
		Player:          player,
		OtherCharacters: renderOtherCharacters(m.table.Characters(), ""),
		Location:        m.table.Location(),
		StoryBackground: m.table.StoryBackground(),
		Messages:        models.WindowMessages(messages, messageWindow),
		Memories:        memories,
	}
	system, user := npcCreatorPrompt(pctx, m.registry.Catalog())

	prompt := user
	for i := 0; i < maxToolIterations; i++ {
		resp, err := m.model.CompleteText(ctx, llm.CompletionRequest{
			Prompt:       prompt,
			SystemPrompt: system,
			Temperature:  0.3,
			MaxTokens:    1024,
		})
		if err != nil {
			return err
		}

		call, ok := parseToolCall(resp.Text)
		if !ok {
			// 纯文本结论：不需要新角色
			utils.GetLogger().Debugf("🎭 阵容检查结束: %s", firstLine(resp.Text))
			return nil
		}

		result := m.executeTool(ctx, call)
		m.emitToolResult(result)

		// 把工具结果拼回提示词，让模型决定是否继续
		prompt = prompt + "\n\nTool call: " + call.Tool + "\nTool result: " + result +
			"\n\nContinue. Call another tool if needed, otherwise reply with plain text."
	}

	utils.GetLogger().Warnf("⚠️ 阵容检查达到 %d 次迭代上限，强制结束", maxToolIterations)
	return nil
}

func (m *NPCManager) executeTool(ctx context.Context, call toolCall) string {
	tool, ok := m.registry.Get(call.Tool)
	if !ok {
		utils.GetLogger().Warnf("⚠️ 模型请求了未注册的工具 %s", call.Tool)
		return "Unknown tool: " + call.Tool
	}

	result, err := tool.Call(ctx, call.Args)
	if err != nil {
		utils.GetLogger().Warnf("⚠️ 工具 %s 执行失败: %v", call.Tool, err)
		return "Tool error: " + err.Error()
	}
	return result
}

func (m *NPCManager) emitToolResult(result string) {
	if m.emit == nil {
		return
	}
	m.emit(stream.Event{
		Kind:      stream.KindToolChunk,
		Namespace: []string{"npc_manager"},
		Node:      stream.NodeUseTools,
		Text:      result,
	})
}

// loadLore 尽力而为地检索与当前对话相关的背景设定
func (m *NPCManager) loadLore(ctx context.Context, messages []models.Message) string {
	lastHuman, ok := models.LastHumanMessage(messages)
	if !ok {
		return ""
	}

	facts, err := m.memory.Search(ctx, lastHuman.Content, []string{
		memory.LoreGroup(m.loreWorld),
	}, 10)
	if err != nil {
		utils.GetLogger().Warnf("⚠️ 阵容检查的背景检索失败，降级为空: %v", err)
		return ""
	}
	return memory.JoinFacts(facts)
}

// parseToolCall 尝试把模型输出解析为一次工具调用
// 容忍JSON前后的噪声文本，但对象本身必须带非空 tool 字段
func parseToolCall(text string) (toolCall, bool) {
	trimmed := strings.TrimSpace(text)

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return toolCall{}, false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &call); err != nil {
		return toolCall{}, false
	}
	if call.Tool == "" {
		return toolCall{}, false
	}
	return call, true
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
