// internal/agents/prompts.go
package agents

import (
	"fmt"
	"strings"

	"github.com/IronMeerkat/dionysus/internal/models"
)

// promptContext 构建提示词所需的完整角色上下文
type promptContext struct {
	Name            string
	Description     string
	OtherCharacters string
	Player          string
	Location        string
	StoryBackground string
	Messages        []models.Message
	EmotionalState  string
	Thoughts        string
	Memories        string
	Lore            string
}

// renderMessages 将消息窗口渲染为提示词正文
func renderMessages(messages []models.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		speaker := m.Speaker
		if speaker == "" {
			speaker = string(m.Role)
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", speaker, m.Content))
	}
	return strings.Join(lines, "\n")
}

// renderOtherCharacters 渲染除自己外的其他角色描述
func renderOtherCharacters(characters []*models.Character, self string) string {
	blocks := make([]string, 0, len(characters))
	for _, c := range characters {
		if c.Name == self {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("**%s**:\n%s", c.Name, c.Description()))
	}
	return strings.Join(blocks, "\n\n\n")
}

// shouldRespondPrompt 入口门控：判断角色是否应当回应当前消息
func shouldRespondPrompt(name, description string, messages []models.Message) (system, user string) {
	system = fmt.Sprintf(
		"You are the participation judge for the tabletop character %s.\n"+
			"Character description:\n%s\n\n"+
			"Decide whether this character would speak up in response to the most recent message. "+
			"Characters stay silent when they are not addressed, have nothing to add, or the scene does not involve them.",
		name, description)
	user = fmt.Sprintf(
		"Recent conversation:\n%s\n\n"+
			"Should %s respond to the current message?",
		renderMessages(messages), name)
	return system, user
}

// emotionsPrompt 情绪更新：产出各维度的有界增量
func emotionsPrompt(ctx promptContext) (system, user string) {
	system = fmt.Sprintf(
		"You track the emotional state of the tabletop character %s.\n"+
			"Character description:\n%s\n\n"+
			"Given the scene and the current emotional state, output how each emotion shifts "+
			"in response to the latest events. Only include dimensions that actually change.",
		ctx.Name, ctx.Description)
	user = fmt.Sprintf(
		"Story background:\n%s\n\nLocation: %s\n\nPlayer:\n%s\n\nOther characters:\n%s\n\n"+
			"Current emotional state:\n%s\n\nRelevant memories:\n%s\n\nRecent conversation:\n%s",
		ctx.StoryBackground, ctx.Location, ctx.Player, ctx.OtherCharacters,
		ctx.EmotionalState, ctx.Memories, renderMessages(ctx.Messages))
	return system, user
}

// planPrompt 规划阶段：产出不展示给玩家的内部思考
func planPrompt(ctx promptContext) (system, user string) {
	system = fmt.Sprintf(
		"You are %s, a character at a tabletop roleplaying session.\n"+
			"Your description:\n%s\n\n"+
			"Think through, in first person, what you want to do or say next and why. "+
			"These are private thoughts the player never sees. Do not write dialogue yet.",
		ctx.Name, ctx.Description)
	user = fmt.Sprintf(
		"Story background:\n%s\n\nLocation: %s\n\nThe player:\n%s\n\nOther characters:\n%s\n\n"+
			"Your emotional state:\n%s\n\nYour memories of past events:\n%s\n\nWorld lore:\n%s\n\n"+
			"Recent conversation:\n%s",
		ctx.StoryBackground, ctx.Location, ctx.Player, ctx.OtherCharacters,
		ctx.EmotionalState, ctx.Memories, ctx.Lore, renderMessages(ctx.Messages))
	return system, user
}

// narratorPrompt 叙述阶段：产出角色本回合唯一的可见发言
func narratorPrompt(ctx promptContext) (system, user string) {
	system = fmt.Sprintf(
		"You are %s, a character at a tabletop roleplaying session.\n"+
			"Your description:\n%s\n\n"+
			"Speak and act in character. Write only %s's next message: dialogue plus brief "+
			"actions in asterisks. Never speak for the player or other characters.",
		ctx.Name, ctx.Description, ctx.Name)
	user = fmt.Sprintf(
		"Story background:\n%s\n\nLocation: %s\n\nThe player:\n%s\n\nOther characters:\n%s\n\n"+
			"Your emotional state:\n%s\n\nYour memories of past events:\n%s\n\nWorld lore:\n%s\n\n"+
			"Your private thoughts about what to do next:\n%s\n\nRecent conversation:\n%s",
		ctx.StoryBackground, ctx.Location, ctx.Player, ctx.OtherCharacters,
		ctx.EmotionalState, ctx.Memories, ctx.Lore, ctx.Thoughts, renderMessages(ctx.Messages))
	return system, user
}

// episodicPerspective 写入情景记忆时附带的抽取视角指引
func episodicPerspective(name, description string) string {
	return fmt.Sprintf(
		"Extract facts from the perspective of %s. Focus on events, promises, and "+
			"relationships that %s would remember.\nCharacter description:\n%s",
		name, name, description)
}

// npcCreatorPrompt NPC管理代理：根据对话上下文决定是否创建新角色
func npcCreatorPrompt(ctx promptContext, toolCatalog string) (system, user string) {
	system = fmt.Sprintf(
		"You manage the cast of a tabletop roleplaying session. When the story calls a new "+
			"named character onto the scene, create them with the available tools.\n\n"+
			"Available tools:\n%s\n\n"+
			"To call a tool, reply with JSON only: {\"tool\": \"<name>\", \"args\": {...}}. "+
			"If no new character is needed, reply with plain text explaining why not.",
		toolCatalog)
	user = fmt.Sprintf(
		"Story background:\n%s\n\nLocation: %s\n\nThe player:\n%s\n\nExisting characters:\n%s\n\n"+
			"Relevant memories and lore:\n%s\n\nRecent conversation:\n%s",
		ctx.StoryBackground, ctx.Location, ctx.Player, ctx.OtherCharacters,
		ctx.Memories, renderMessages(ctx.Messages))
	return system, user
}
