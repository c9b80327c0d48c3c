// internal/models/character.go
package models

import "time"

// DescriptionVersion 角色描述的一个版本
// 版本历史只追加，从不原地修改
type DescriptionVersion struct {
	Version   int       `json:"version"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Character 表示一个可对话的 NPC 角色
type Character struct {
	Name                string               `json:"name"`
	DescriptionVersions []DescriptionVersion `json:"description_versions"`
	CreatedAt           time.Time            `json:"created_at"`
}

// NewCharacter 创建角色并写入首个描述版本
func NewCharacter(name, description string) *Character {
	c := &Character{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if description != "" {
		c.AddDescription(description)
	}
	return c
}

// Description 返回当前（最新版本）的描述
func (c *Character) Description() string {
	if len(c.DescriptionVersions) == 0 {
		return ""
	}
	return c.DescriptionVersions[len(c.DescriptionVersions)-1].Body
}

// DescriptionVersionNumber 返回当前描述的版本号，无版本时为 0
func (c *Character) DescriptionVersionNumber() int {
	if len(c.DescriptionVersions) == 0 {
		return 0
	}
	return c.DescriptionVersions[len(c.DescriptionVersions)-1].Version
}

// AddDescription 追加一个新的描述版本
func (c *Character) AddDescription(body string) DescriptionVersion {
	next := DescriptionVersion{
		Version:   c.DescriptionVersionNumber() + 1,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	c.DescriptionVersions = append(c.DescriptionVersions, next)
	return next
}

// DescriptionAtVersion 查找指定版本的描述正文
func (c *Character) DescriptionAtVersion(version int) (string, bool) {
	for _, v := range c.DescriptionVersions {
		if v.Version == version {
			return v.Body, true
		}
	}
	return "", false
}

// Player 表示人类玩家，沿用与角色相同的版本化描述模式
type Player struct {
	Name                string               `json:"name"`
	DescriptionVersions []DescriptionVersion `json:"description_versions"`
	CreatedAt           time.Time            `json:"created_at"`
}

// NewPlayer 创建玩家并写入首个描述版本
func NewPlayer(name, description string) *Player {
	p := &Player{
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if description != "" {
		p.AddDescription(description)
	}
	return p
}

// Description 返回当前（最新版本）的描述
func (p *Player) Description() string {
	if len(p.DescriptionVersions) == 0 {
		return ""
	}
	return p.DescriptionVersions[len(p.DescriptionVersions)-1].Body
}

// AddDescription 追加一个新的描述版本
func (p *Player) AddDescription(body string) DescriptionVersion {
	version := 1
	if n := len(p.DescriptionVersions); n > 0 {
		version = p.DescriptionVersions[n-1].Version + 1
	}
	next := DescriptionVersion{
		Version:   version,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	p.DescriptionVersions = append(p.DescriptionVersions, next)
	return next
}
