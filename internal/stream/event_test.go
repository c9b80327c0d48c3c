// internal/stream/event_test.go
package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathFromNamespace(t *testing.T) {
	path := PathFromNamespace([]string{"npc_swarm:3f1a", "Aria:77bc", "npc_narrator"})
	assert.Equal(t, []string{"npc_swarm", "Aria", "npc_narrator"}, path)

	// 内部同步节点被剔除
	path = PathFromNamespace([]string{"__start__", "Aria:1", "__end__:2"})
	assert.Equal(t, []string{"Aria"}, path)

	assert.Empty(t, PathFromNamespace(nil))
}

func TestEventPathIncludesNode(t *testing.T) {
	e := Event{
		Kind:      KindAIChunk,
		Namespace: []string{"npc_swarm:1", "Boros:2"},
		Node:      NodeNarrator,
	}
	assert.Equal(t, []string{"npc_swarm", "Boros", "npc_narrator"}, e.Path())
}

func TestResolveSpeakerInnermostWins(t *testing.T) {
	characters := []string{"Aria", "Boros"}

	// 最内层的角色匹配优先于外层
	speaker, ok := ResolveSpeaker(characters, []string{"Aria", "Boros", "npc_narrator"})
	require.True(t, ok)
	assert.Equal(t, "Boros", speaker)

	speaker, ok = ResolveSpeaker(characters, []string{"npc_swarm", "Boros", "npc_narrator"})
	require.True(t, ok)
	assert.Equal(t, "Boros", speaker)
}

func TestResolveSpeakerSingleCharacterFallback(t *testing.T) {
	// 单角色会话：路径里没有角色名也能归属
	speaker, ok := ResolveSpeaker([]string{"Boros"}, []string{"npc_2", "npc_narrator"})
	require.True(t, ok)
	assert.Equal(t, "Boros", speaker)
}

func TestResolveSpeakerFailsClosedWithMultipleCharacters(t *testing.T) {
	_, ok := ResolveSpeaker([]string{"Aria", "Boros"}, []string{"npc_2", "npc_narrator"})
	assert.False(t, ok)

	_, ok = ResolveSpeaker([]string{"Aria", "Boros"}, nil)
	assert.False(t, ok)
}

func TestResolveSpeakerIsPure(t *testing.T) {
	characters := []string{"Aria", "Boros"}
	path := []string{"npc_swarm", "Aria", "npc_narrator"}

	first, ok1 := ResolveSpeaker(characters, path)
	second, ok2 := ResolveSpeaker(characters, path)
	assert.Equal(t, first, second)
	assert.Equal(t, ok1, ok2)
}
