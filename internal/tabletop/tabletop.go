// internal/tabletop/tabletop.go
package tabletop

import (
	"sync"

	"github.com/IronMeerkat/dionysus/internal/models"
)

// Tabletop 一次游戏会话的共享桌面状态
// 持有玩家、参与角色、场景信息以及回合间的消息缓冲区
// 不是全局单例：由注册表按会话创建并通过依赖注入传递
type Tabletop struct {
	mu sync.RWMutex

	player     *models.Player
	characters []*models.Character

	location        string
	storyBackground string

	// 回合间消息缓冲区，只由编排器的持久化阶段写入
	messages []models.Message
}

// New 创建桌面状态
func New(player *models.Player, characters []*models.Character) *Tabletop {
	return &Tabletop{
		player:     player,
		characters: characters,
	}
}

// Player 返回玩家
func (t *Tabletop) Player() *models.Player {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.player
}

// Characters 返回参与角色，按注册顺序
func (t *Tabletop) Characters() []*models.Character {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*models.Character, len(t.characters))
	copy(out, t.characters)
	return out
}

// CharacterNames 返回角色显示名，按注册顺序
func (t *Tabletop) CharacterNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.characters))
	for _, c := range t.characters {
		names = append(names, c.Name)
	}
	return names
}

// AddCharacter 新角色加入桌面
func (t *Tabletop) AddCharacter(c *models.Character) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.characters {
		if existing.Name == c.Name {
			return
		}
	}
	t.characters = append(t.characters, c)
}

// Location 当前场景位置
func (t *Tabletop) Location() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.location
}

// SetLocation 更新场景位置
func (t *Tabletop) SetLocation(location string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = location
}

// StoryBackground 故事背景
func (t *Tabletop) StoryBackground() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.storyBackground
}

// SetStoryBackground 更新故事背景
func (t *Tabletop) SetStoryBackground(background string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storyBackground = background
}

// Messages 返回消息缓冲区的拷贝
func (t *Tabletop) Messages() []models.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// ExtendMessages 将一个回合产生的消息追加到缓冲区
func (t *Tabletop) ExtendMessages(delta []models.Message) {
	if len(delta) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, delta...)
}

// Registry 以会话标识为键的桌面注册表
// 不同客户端会话完全独立，互不共享可变状态
type Registry struct {
	mu     sync.Mutex
	tables map[string]*Tabletop
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Tabletop)}
}

// Put 注册一个会话的桌面
func (r *Registry) Put(sessionID string, table *Tabletop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[sessionID] = table
}

// Get 查找会话的桌面
func (r *Registry) Get(sessionID string) (*Tabletop, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.tables[sessionID]
	return table, ok
}

// Remove 会话结束时移除桌面
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, sessionID)
}
