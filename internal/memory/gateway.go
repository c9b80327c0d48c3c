// internal/memory/gateway.go
package memory

import (
	"context"
	"strings"

	"github.com/IronMeerkat/dionysus/internal/models"
)

// 组标识分隔符
const GroupSep = "--"

// MakeGroupID 由类别和名称构建合法的记忆组标识
// 知识库只允许字母数字、短横线和下划线
func MakeGroupID(category, name string) string {
	sanitized := strings.NewReplacer(" ", "_", ":", "_").Replace(name)
	return category + GroupSep + sanitized
}

// MemoriesGroup 角色私有情景记忆组
func MemoriesGroup(characterName string) string {
	return MakeGroupID("memories", characterName)
}

// LoreGroup 共享世界背景知识组
func LoreGroup(world string) string {
	return MakeGroupID("lore", world)
}

// Gateway 核心对外部记忆/知识存储的抽象契约
// Search 对空结果必须返回空切片而非错误；只有传输失败才报错
// Insert 从调用方视角是尽力而为的：失败由网关调用方记录，不重试
type Gateway interface {
	Search(ctx context.Context, query string, groupIDs []string, limit int) ([]string, error)
	Insert(ctx context.Context, messages []models.Message, groupID, sourceDescription, perspective string) error
}

// JoinFacts 将检索到的事实拼接为提示词可用的多行文本
func JoinFacts(facts []string) string {
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, "\n")
}
