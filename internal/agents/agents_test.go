// internal/agents/agents_test.go
package agents

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IronMeerkat/dionysus/internal/emotion"
	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/llm"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/stream"
	"github.com/IronMeerkat/dionysus/internal/tabletop"
)

// fakeModel 可编排的模型桩
type fakeModel struct {
	mu sync.Mutex

	structured    map[string]string // format name -> 原始JSON
	structuredErr map[string]error
	structuredLog []string // 被请求过的 format name
	gatePrompts   []string

	planText      string
	completeErr   error
	completeCalls int

	chunks    []string
	omitDone  bool
	streamErr error
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		structured:    map[string]string{},
		structuredErr: map[string]error{},
		planText:      "internal thoughts",
		chunks:        []string{"Hello", " there"},
	}
}

func (f *fakeModel) CompleteText(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.CompletionResponse{Text: f.planText}, nil
}

func (f *fakeModel) StreamCompletion(_ context.Context, _ llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan llm.StreamResponse, len(f.chunks)+1)
	full := strings.Join(f.chunks, "")
	for _, c := range f.chunks {
		ch <- llm.StreamResponse{Text: c}
	}
	if !f.omitDone {
		ch <- llm.StreamResponse{Text: full, Done: true, FinishReason: "stop"}
	}
	close(ch)
	return ch, nil
}

func (f *fakeModel) CreateStructuredCompletion(_ context.Context, prompt, _ string, format *llm.ResponseFormat, out interface{}) error {
	f.mu.Lock()
	f.structuredLog = append(f.structuredLog, format.Name)
	if format.Name == shouldRespondSchema.Name {
		f.gatePrompts = append(f.gatePrompts, prompt)
	}
	raw, hasRaw := f.structured[format.Name]
	err := f.structuredErr[format.Name]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if !hasRaw {
		raw = "{}"
	}
	return json.Unmarshal([]byte(raw), out)
}

func (f *fakeModel) gateTrue() *fakeModel {
	f.structured[shouldRespondSchema.Name] = `{"should_respond": true}`
	return f
}

// fakeGateway 记忆网关桩
type fakeGateway struct {
	mu sync.Mutex

	facts     []string
	searchErr error
	searches  int

	insertErr    error
	insertGroups []string
}

func (g *fakeGateway) Search(_ context.Context, _ string, _ []string, _ int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searches++
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.facts, nil
}

func (g *fakeGateway) Insert(_ context.Context, _ []models.Message, groupID, _, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.insertGroups = append(g.insertGroups, groupID)
	return g.insertErr
}

func (g *fakeGateway) searchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.searches
}

// eventLog 线程安全的事件收集器
type eventLog struct {
	mu     sync.Mutex
	events []stream.Event
}

func (l *eventLog) sink(e stream.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) byNode(node string) []stream.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []stream.Event
	for _, e := range l.events {
		if e.Node == node {
			out = append(out, e)
		}
	}
	return out
}

func newTestTable(characterNames ...string) *tabletop.Tabletop {
	player := models.NewPlayer("Ilya", "a wandering scholar")
	cast := make([]*models.Character, 0, len(characterNames))
	for _, name := range characterNames {
		cast = append(cast, models.NewCharacter(name, name+" the npc"))
	}
	table := tabletop.New(player, cast)
	table.SetLocation("The Drunken Goat tavern")
	table.SetStoryBackground("A storm traps everyone inside for the night.")
	return table
}

func newTestAgent(name string, table *tabletop.Tabletop, model ModelClient, gateway *fakeGateway, log *eventLog) *NPCAgent {
	var character *models.Character
	for _, c := range table.Characters() {
		if c.Name == name {
			character = c
		}
	}
	sink := EventSink(nil)
	if log != nil {
		sink = log.sink
	}
	return NewNPCAgent(character, table, emotion.NewRegistry(), model, gateway, "default", sink)
}

func playerSays(text string) []models.Message {
	return []models.Message{models.NewHumanMessage("Ilya", text)}
}

func TestTurnGateFalseSkipsPipeline(t *testing.T) {
	model := newFakeModel()
	model.structured[shouldRespondSchema.Name] = `{"should_respond": false}`
	gateway := &fakeGateway{}

	agent := newTestAgent("Aria", newTestTable("Aria"), model, gateway, nil)
	state, err := agent.RunTurn(context.Background(), playerSays("hello"))

	require.NoError(t, err)
	assert.Empty(t, state.Delta)
	// 门控为否时后续阶段一律不执行
	assert.Equal(t, 0, gateway.searchCount())
	assert.Equal(t, 0, model.completeCalls)
	assert.Equal(t, []string{shouldRespondSchema.Name}, model.structuredLog)
}

func TestTurnGateMissingDecisionFailsClosed(t *testing.T) {
	model := newFakeModel()
	model.structured[shouldRespondSchema.Name] = `{}`
	gateway := &fakeGateway{}

	agent := newTestAgent("Aria", newTestTable("Aria"), model, gateway, nil)
	state, err := agent.RunTurn(context.Background(), playerSays("hello"))

	require.NoError(t, err)
	assert.Empty(t, state.Delta)
	assert.Equal(t, 0, gateway.searchCount())
}

func TestTurnGateUnparsableOutputFailsClosed(t *testing.T) {
	model := newFakeModel()
	model.structuredErr[shouldRespondSchema.Name] = apperrors.NewValidationError("not json", nil)

	agent := newTestAgent("Aria", newTestTable("Aria"), model, &fakeGateway{}, nil)
	state, err := agent.RunTurn(context.Background(), playerSays("hello"))

	require.NoError(t, err)
	assert.Empty(t, state.Delta)
}

func TestTurnGateTransientErrorFailsTurn(t *testing.T) {
	model := newFakeModel()
	model.structuredErr[shouldRespondSchema.Name] = apperrors.NewTransientError("provider down", nil)

	agent := newTestAgent("Aria", newTestTable("Aria"), model, &fakeGateway{}, nil)
	_, err := agent.RunTurn(context.Background(), playerSays("hello"))

	assert.Error(t, err)
}

func TestFullTurnProducesSingleDelta(t *testing.T) {
	model := newFakeModel().gateTrue()
	model.structured[emotionDeltaSchema.Name] = `{"joy": 3, "fear": -1}`
	gateway := &fakeGateway{facts: []string{"Aria owes Ilya a favor."}}
	log := &eventLog{}

	table := newTestTable("Aria")
	agent := newTestAgent("Aria", table, model, gateway, log)
	state, err := agent.RunTurn(context.Background(), playerSays("sing for us"))
	require.NoError(t, err)

	// 回合只产生一条可见消息，且不回显输入
	require.Len(t, state.Delta, 1)
	msg := state.Delta[0]
	assert.Equal(t, models.RoleAI, msg.Role)
	assert.Equal(t, "Aria", msg.Speaker)
	assert.Equal(t, "Hello there", msg.Content)
	assert.NotEmpty(t, msg.ID)

	// 情绪增量被应用且钳制在区间内
	assert.Equal(t, 3, agent.Emotions().Get(emotion.Joy))
	assert.Equal(t, -1, agent.Emotions().Get(emotion.Fear))

	// 两路检索并行执行
	assert.Equal(t, 2, gateway.searchCount())
	assert.Equal(t, "Aria owes Ilya a favor.", state.Memories)

	// 规划事件与逐token叙述事件都被发出
	assert.Len(t, log.byNode(stream.NodePlanner), 1)
	narrated := log.byNode(stream.NodeNarrator)
	require.Len(t, narrated, 2)
	assert.Equal(t, "Hello", narrated[0].Text)

	// 记忆写入异步送达角色私有组
	agent.WaitForMemoryInserts()
	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	require.Len(t, gateway.insertGroups, 1)
	assert.Equal(t, "memories--Aria", gateway.insertGroups[0])
}

func TestRetrievalFailureDegradesToEmpty(t *testing.T) {
	model := newFakeModel().gateTrue()
	gateway := &fakeGateway{searchErr: assert.AnError}

	agent := newTestAgent("Aria", newTestTable("Aria"), model, gateway, nil)
	state, err := agent.RunTurn(context.Background(), playerSays("hello"))

	// 检索失败绝不中止回合
	require.NoError(t, err)
	require.Len(t, state.Delta, 1)
	assert.Equal(t, "", state.Memories)
	assert.Equal(t, "", state.Lore)
}

func TestEmotionStageErrorFailsTurn(t *testing.T) {
	model := newFakeModel().gateTrue()
	model.structuredErr[emotionDeltaSchema.Name] = apperrors.NewTransientError("provider down", nil)

	agent := newTestAgent("Aria", newTestTable("Aria"), model, &fakeGateway{}, nil)
	_, err := agent.RunTurn(context.Background(), playerSays("hello"))
	assert.Error(t, err)
}

func TestNarratorStreamInterruptedFailsTurn(t *testing.T) {
	model := newFakeModel().gateTrue()
	model.omitDone = true
	log := &eventLog{}

	agent := newTestAgent("Aria", newTestTable("Aria"), model, &fakeGateway{}, log)
	_, err := agent.RunTurn(context.Background(), playerSays("hello"))

	require.Error(t, err)
	// 已经流出的token不会被撤回
	assert.NotEmpty(t, log.byNode(stream.NodeNarrator))
}

func TestMemoryInsertFailureDoesNotFailTurn(t *testing.T) {
	model := newFakeModel().gateTrue()
	gateway := &fakeGateway{insertErr: assert.AnError}

	agent := newTestAgent("Aria", newTestTable("Aria"), model, gateway, nil)
	state, err := agent.RunTurn(context.Background(), playerSays("hello"))

	require.NoError(t, err)
	assert.Len(t, state.Delta, 1)
	agent.WaitForMemoryInserts()
}

func TestSwarmDaisyChainPassesEarlierDeltas(t *testing.T) {
	table := newTestTable("Aria", "Boros")

	ariaModel := newFakeModel().gateTrue()
	ariaModel.chunks = []string{"a round of ale!"}
	borosModel := newFakeModel().gateTrue()
	borosModel.chunks = []string{"make it two."}

	aria := newTestAgent("Aria", table, ariaModel, &fakeGateway{}, nil)
	boros := newTestAgent("Boros", table, borosModel, &fakeGateway{}, nil)
	swarm := NewSwarm([]*NPCAgent{aria, boros})

	delta := swarm.RunRound(context.Background(), playerSays("drinks on me"))

	require.Len(t, delta, 2)
	assert.Equal(t, "Aria", delta[0].Speaker)
	assert.Equal(t, "Boros", delta[1].Speaker)

	// 后手成员的门控提示词里能看到先手成员的发言
	require.Len(t, borosModel.gatePrompts, 1)
	assert.Contains(t, borosModel.gatePrompts[0], "a round of ale!")
	// 先手成员看不到后手的
	require.Len(t, ariaModel.gatePrompts, 1)
	assert.NotContains(t, ariaModel.gatePrompts[0], "make it two.")
}

func TestSwarmIsolatesMemberFailure(t *testing.T) {
	table := newTestTable("Aria", "Boros")

	ariaModel := newFakeModel()
	ariaModel.structuredErr[shouldRespondSchema.Name] = apperrors.NewTransientError("provider down", nil)
	borosModel := newFakeModel().gateTrue()
	borosModel.chunks = []string{"still here."}

	aria := newTestAgent("Aria", table, ariaModel, &fakeGateway{}, nil)
	boros := newTestAgent("Boros", table, borosModel, &fakeGateway{}, nil)
	swarm := NewSwarm([]*NPCAgent{aria, boros})

	delta := swarm.RunRound(context.Background(), playerSays("anyone?"))

	// 单个成员失败只影响自己
	require.Len(t, delta, 1)
	assert.Equal(t, "Boros", delta[0].Speaker)
}

func TestSwarmNamespaces(t *testing.T) {
	table := newTestTable("Aria", "Boros")
	log := &eventLog{}

	model := newFakeModel().gateTrue()
	aria := newTestAgent("Aria", table, model, &fakeGateway{}, log)
	boros := newTestAgent("Boros", table, newFakeModel().gateTrue(), &fakeGateway{}, log)
	NewSwarm([]*NPCAgent{aria, boros})

	aria.emitEvent(stream.KindAIChunk, stream.NodeNarrator, "x")
	events := log.byNode(stream.NodeNarrator)
	require.Len(t, events, 1)
	assert.Equal(t, []string{SwarmNamespace, "Aria"}, events[0].Namespace)

	// 单成员蜂群不套外层命名空间
	solo := newTestAgent("Aria", newTestTable("Aria"), newFakeModel(), &fakeGateway{}, log)
	NewSwarm([]*NPCAgent{solo})
	solo.emitEvent(stream.KindAIChunk, stream.NodeNarrator, "y")
	events = log.byNode(stream.NodeNarrator)
	require.Len(t, events, 2)
	assert.Empty(t, events[1].Namespace)
}

type fakeTranscripts struct {
	mu    sync.Mutex
	saves int
}

func (f *fakeTranscripts) SaveConversation(_ *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func newTestDM(t *testing.T, table *tabletop.Tabletop, model *fakeModel) (*DungeonMaster, *fakeTranscripts) {
	t.Helper()
	agent := newTestAgent(table.CharacterNames()[0], table, model, &fakeGateway{}, nil)
	swarm := NewSwarm([]*NPCAgent{agent})
	conv := models.NewConversation("s1", table.Player(), table.Characters())
	transcripts := &fakeTranscripts{}
	return NewDungeonMaster(table, swarm, conv, transcripts, nil), transcripts
}

func TestDungeonMasterRound(t *testing.T) {
	table := newTestTable("Aria")
	model := newFakeModel().gateTrue()
	dm, transcripts := newTestDM(t, table, model)

	newMessages, err := dm.ProcessMessage(context.Background(), "hello there")
	require.NoError(t, err)

	// 一轮产生玩家消息加一条NPC消息
	require.Len(t, newMessages, 2)
	assert.Equal(t, models.RoleHuman, newMessages[0].Role)
	assert.Equal(t, "Ilya", newMessages[0].Speaker)
	assert.Equal(t, models.RoleAI, newMessages[1].Role)

	// 桌面缓冲区与转录同步增长，转录已落盘
	assert.Len(t, table.Messages(), 2)
	assert.Len(t, dm.Conversation().Messages, 2)
	assert.Equal(t, 0, dm.Conversation().DuplicateIDCount())
	assert.Equal(t, 1, transcripts.saves)

	// 第二轮在已有历史之上追加
	_, err = dm.ProcessMessage(context.Background(), "and again")
	require.NoError(t, err)
	assert.Len(t, table.Messages(), 4)
	assert.Equal(t, 2, transcripts.saves)
}

func TestDungeonMasterDuplicatePersistIsNotFatal(t *testing.T) {
	table := newTestTable("Aria")
	dm, _ := newTestDM(t, table, newFakeModel().gateTrue())

	msg := models.NewAIMessage("Aria", "once")
	dm.persist([]models.Message{msg})
	dm.persist([]models.Message{msg})

	// 转录拒绝重复ID但不报错；缓冲区按追加语义保留两份由诊断计数兜底
	assert.Len(t, dm.Conversation().Messages, 1)
	assert.Len(t, table.Messages(), 2)
}

func TestDungeonMasterStampsMissingMessageIDs(t *testing.T) {
	table := newTestTable("Aria")
	dm, _ := newTestDM(t, table, newFakeModel().gateTrue())

	// 上游遗漏ID时持久化阶段补发新ID，两条消息不得互撞
	batch := []models.Message{
		{Role: models.RoleAI, Speaker: "Aria", Content: "one"},
		{Role: models.RoleAI, Speaker: "Aria", Content: "two"},
	}
	dm.persist(batch)

	messages := dm.Conversation().Messages
	require.Len(t, messages, 2)
	assert.NotEmpty(t, messages[0].ID)
	assert.NotEmpty(t, messages[1].ID)
	assert.NotEqual(t, messages[0].ID, messages[1].ID)
	assert.Equal(t, 0, dm.Conversation().DuplicateIDCount())
}

func TestTurnStateDeltaDisjointFromInput(t *testing.T) {
	input := playerSays("hi")
	state := NewTurnState(input)
	state.AppendDelta(models.NewAIMessage("Aria", "yo"))

	require.Len(t, state.Delta, 1)
	assert.NotEqual(t, input[0].ID, state.Delta[0].ID)

	combined := state.CombinedMessages()
	require.Len(t, combined, 2)
	assert.Equal(t, input[0].ID, combined[0].ID)
}

func TestCombinedMessagesWindowed(t *testing.T) {
	var input []models.Message
	for i := 0; i < 20; i++ {
		input = append(input, models.NewHumanMessage("Ilya", "m"))
	}
	state := NewTurnState(input)
	state.AppendDelta(models.NewAIMessage("Aria", "last"))

	combined := state.CombinedMessages()
	require.Len(t, combined, messageWindow)
	// 窗口保留最近的消息，增量在末尾
	assert.Equal(t, "last", combined[len(combined)-1].Content)
}

func TestParseToolCall(t *testing.T) {
	call, ok := parseToolCall(`{"tool": "roll_d20", "args": {"count": 2}}`)
	require.True(t, ok)
	assert.Equal(t, "roll_d20", call.Tool)
	assert.Equal(t, float64(2), call.Args["count"])

	// 容忍JSON外围的噪声
	call, ok = parseToolCall("Sure, rolling now:\n{\"tool\": \"roll_d6\", \"args\": {}}\nDone.")
	require.True(t, ok)
	assert.Equal(t, "roll_d6", call.Tool)

	_, ok = parseToolCall("no new character is needed here")
	assert.False(t, ok)

	_, ok = parseToolCall(`{"args": {}}`)
	assert.False(t, ok)
}
