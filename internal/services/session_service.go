// internal/services/session_service.go
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/IronMeerkat/dionysus/internal/agents"
	"github.com/IronMeerkat/dionysus/internal/emotion"
	"github.com/IronMeerkat/dionysus/internal/memory"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/storage"
	"github.com/IronMeerkat/dionysus/internal/stream"
	"github.com/IronMeerkat/dionysus/internal/tabletop"
	"github.com/IronMeerkat/dionysus/internal/tools"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// Session 一局进行中的桌面会话
// 桌面缓冲区、蜂群、编排器和阵容管理代理绑定在一起，
// 流事件通过会话内的可替换接收槽转发给当前这一轮的转发器
type Session struct {
	ID           string
	Table        *tabletop.Tabletop
	Conversation *models.Conversation

	dm      *agents.DungeonMaster
	swarm   *agents.Swarm
	manager *agents.NPCManager

	sinkMu sync.Mutex
	sink   chan<- stream.Event

	roundMu sync.Mutex
}

// emitEvent 把代理产生的事件转发给当前一轮的接收通道
// 没有订阅者或通道已满时丢弃，代理绝不因为慢消费者阻塞
func (s *Session) emitEvent(event stream.Event) {
	s.sinkMu.Lock()
	sink := s.sink
	s.sinkMu.Unlock()

	if sink == nil {
		return
	}
	select {
	case sink <- event:
	default:
		utils.GetLogger().Warnf("⚠️ 会话 %s 的事件通道已满，事件被丢弃", s.ID)
	}
}

func (s *Session) setSink(sink chan<- stream.Event) {
	s.sinkMu.Lock()
	s.sink = sink
	s.sinkMu.Unlock()
}

// RunRound 处理一条玩家消息并把整轮的流事件转发给 emitter
// 同一会话内串行执行，一轮结束前后续消息排队等待
func (s *Session) RunRound(ctx context.Context, text string, emitter stream.Emitter) error {
	s.roundMu.Lock()
	defer s.roundMu.Unlock()

	events := make(chan stream.Event, 256)
	s.setSink(events)

	relay := stream.NewRelay(emitter, s.Table.CharacterNames())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Process(events)
	}()

	_, err := s.dm.ProcessMessage(ctx, text)

	s.setSink(nil)
	close(events)
	<-relayDone

	if err != nil {
		return err
	}

	// 阵容检查在回复送达之后尽力而为地执行
	if s.manager != nil {
		if mgrErr := s.manager.Run(ctx, s.Table.Messages()); mgrErr != nil {
			utils.GetLogger().Warnf("⚠️ 会话 %s 的阵容检查失败: %v", s.ID, mgrErr)
		}
	}

	return nil
}

// WaitForMemoryInserts 等待在途的记忆写入完成
func (s *Session) WaitForMemoryInserts() {
	s.dm.WaitForMemoryInserts()
}

// SessionService 会话的创建、查找与销毁
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tables      *tabletop.Registry
	emotions    *emotion.Registry
	llmService  *LLMService
	gateway     memory.Gateway
	characters  *storage.CharacterStore
	transcripts *storage.TranscriptStore
	loreWorld   string
}

// NewSessionService 创建会话服务
func NewSessionService(
	llmService *LLMService,
	gateway memory.Gateway,
	characters *storage.CharacterStore,
	transcripts *storage.TranscriptStore,
	loreWorld string,
) *SessionService {
	return &SessionService{
		sessions:    make(map[string]*Session),
		tables:      tabletop.NewRegistry(),
		emotions:    emotion.NewRegistry(),
		llmService:  llmService,
		gateway:     gateway,
		characters:  characters,
		transcripts: transcripts,
		loreWorld:   loreWorld,
	}
}

// CreateSession 按玩家名和角色名列表开一局新会话
// 角色顺序决定每轮内的发言顺序
func (s *SessionService) CreateSession(playerName string, characterNames []string) (*Session, error) {
	if len(characterNames) == 0 {
		return nil, fmt.Errorf("至少需要一个角色")
	}

	player, err := s.characters.GetPlayer(playerName)
	if err != nil {
		return nil, fmt.Errorf("玩家 %s 不存在: %w", playerName, err)
	}

	cast := make([]*models.Character, 0, len(characterNames))
	for _, name := range characterNames {
		character, err := s.characters.GetCharacter(name)
		if err != nil {
			return nil, fmt.Errorf("角色 %s 不存在: %w", name, err)
		}
		cast = append(cast, character)
	}

	sessionID := uuid.NewString()
	table := tabletop.New(player, cast)
	conversation := models.NewConversation(sessionID, player, cast)

	session := &Session{
		ID:           sessionID,
		Table:        table,
		Conversation: conversation,
	}

	npcs := make([]*agents.NPCAgent, 0, len(cast))
	for _, character := range cast {
		npcs = append(npcs, agents.NewNPCAgent(
			character, table, s.emotions, s.llmService, s.gateway,
			s.loreWorld, session.emitEvent))
	}
	session.swarm = agents.NewSwarm(npcs)

	session.dm = agents.NewDungeonMaster(table, session.swarm, conversation, s.transcripts, session.emitEvent)
	session.manager = agents.NewNPCManager(
		table, s.llmService, s.gateway,
		s.castTools(session), s.loreWorld, session.emitEvent)

	s.tables.Put(sessionID, table)
	s.mu.Lock()
	s.sessions[sessionID] = session
	s.mu.Unlock()

	utils.GetLogger().Infof("🎲 会话 %s 已创建 (玩家: %s, 角色: %v)", sessionID, playerName, characterNames)
	return session, nil
}

// castTools 阵容管理代理可用的工具集
// 新创建的角色写入存储、加入桌面并追加到蜂群链尾
func (s *SessionService) castTools(session *Session) *tools.Registry {
	return tools.NewRegistry(
		tools.NewD20(),
		tools.NewD10(),
		tools.NewD6(),
		tools.NewCheckNPCExistence(s.characters),
		tools.NewCreateCharacter(s.characters, func(character *models.Character) {
			session.Table.AddCharacter(character)
			session.swarm.AddAgent(agents.NewNPCAgent(
				character, session.Table, s.emotions, s.llmService, s.gateway,
				s.loreWorld, session.emitEvent))
		}),
	)
}

// GetSession 按ID查找会话
func (s *SessionService) GetSession(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// RemoveSession 销毁会话，等待在途的记忆写入后移除
func (s *SessionService) RemoveSession(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	s.tables.Remove(id)
	if ok {
		session.WaitForMemoryInserts()
		utils.GetLogger().Infof("🧹 会话 %s 已销毁", id)
	}
}

// SessionIDs 当前所有活跃会话ID
func (s *SessionService) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
