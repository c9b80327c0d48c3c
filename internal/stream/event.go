// internal/stream/event.go
package stream

import "strings"

// EventKind 流事件的种类标签
type EventKind string

const (
	KindAIChunk   EventKind = "ai_chunk"   // 模型产生的token片段
	KindToolChunk EventKind = "tool_chunk" // 工具执行结果片段
	KindHuman     EventKind = "human"      // 玩家消息回显
)

// 管线内的节点名
const (
	NodePlanner  = "planner"
	NodeUseTools = "use_tools"
	NodeNarrator = "npc_narrator"
)

// Event 图执行期间产生的一条带标签的流事件
// Namespace 是从外到内的节点标识路径；约定其中最内层能匹配到
// 已知角色名的元素就是该事件的权威发言者
type Event struct {
	Kind      EventKind `json:"kind"`
	Namespace []string  `json:"namespace"`
	Node      string    `json:"node"`
	Text      string    `json:"text"`
}

// PathFromNamespace 从命名空间提取节点名路径
// 去掉 "__" 前缀的内部同步节点，去掉 ":" 之后的实例后缀
// 例如 ["npc_2:uuid", "npc_narrator:uuid"] -> ["npc_2", "npc_narrator"]
func PathFromNamespace(namespace []string) []string {
	path := make([]string, 0, len(namespace))
	for _, part := range namespace {
		name := part
		if idx := strings.Index(part, ":"); idx >= 0 {
			name = part[:idx]
		}
		if strings.HasPrefix(name, "__") {
			continue
		}
		if name != "" {
			path = append(path, name)
		}
	}
	return path
}

// Path 本事件的归属路径（命名空间 + 节点自身）
func (e Event) Path() []string {
	return PathFromNamespace(append(append([]string{}, e.Namespace...), e.Node))
}

// ResolveSpeaker 从路径解析发言角色，最内层匹配优先
// 纯函数：相同的 (characters, path) 输入总是产生相同结果
// 单角色会话中无匹配时退化为该唯一角色；多角色下无匹配视为归属失败
func ResolveSpeaker(characters []string, path []string) (string, bool) {
	known := make(map[string]bool, len(characters))
	for _, c := range characters {
		known[c] = true
	}

	for i := len(path) - 1; i >= 0; i-- {
		if known[path[i]] {
			return path[i], true
		}
	}

	if len(characters) == 1 {
		return characters[0], true
	}

	return "", false
}
