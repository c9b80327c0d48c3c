// internal/services/llm_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONStringStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"should_respond\": true}\n```"
	assert.Equal(t, `{"should_respond": true}`, cleanJSONString(raw))
}

func TestCleanJSONStringStripsInvisibleCharacters(t *testing.T) {
	// 模型输出偶尔携带BOM、零宽字符和Unicode行分隔符
	raw := "\ufeff{\"joy\": 2,​\"fear\": -1}‍"
	assert.Equal(t, `{"joy": 2,"fear":
-1}`, cleanJSONString(raw))
}

func TestCleanJSONStringDropsLeadingProse(t *testing.T) {
	raw := "Here is the decision:\n{\"should_respond\": false} trailing chatter"
	assert.Equal(t, `{"should_respond": false}`, cleanJSONString(raw))
}

func TestCleanJSONStringNoObjectPassesThrough(t *testing.T) {
	assert.Equal(t, "no json here", cleanJSONString("no json here"))
	assert.Equal(t, "", cleanJSONString(""))
}
