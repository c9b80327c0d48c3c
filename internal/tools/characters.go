// internal/tools/characters.go
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/IronMeerkat/dionysus/internal/models"
)

// CharacterDirectory 角色查询与创建的后端
// 由 storage.CharacterStore 满足
type CharacterDirectory interface {
	GetCharacter(name string) (*models.Character, error)
	SaveCharacter(character *models.Character) error
	ListCharacterNames() ([]string, error)
}

// CheckNPCExistenceTool 查询某个NPC是否已经存在于角色目录
type CheckNPCExistenceTool struct {
	directory CharacterDirectory
}

// NewCheckNPCExistence 创建存在性查询工具
func NewCheckNPCExistence(directory CharacterDirectory) *CheckNPCExistenceTool {
	return &CheckNPCExistenceTool{directory: directory}
}

func (t *CheckNPCExistenceTool) Name() string { return "check_npc_existence" }

func (t *CheckNPCExistenceTool) Description() string {
	return "Check whether an NPC with the given name already exists. Args: {\"name\": <character name>}"
}

func (t *CheckNPCExistenceTool) Call(_ context.Context, args map[string]interface{}) (string, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", err
	}

	character, err := t.directory.GetCharacter(name)
	if err != nil {
		return fmt.Sprintf("No character named %q exists.", name), nil
	}
	return fmt.Sprintf("Character %q exists: %s", character.Name, character.Description()), nil
}

// CreateCharacterTool 创建新NPC并写入角色目录
// onCreate 非 nil 时在保存成功后回调，用于把新角色接入当前会话
type CreateCharacterTool struct {
	directory CharacterDirectory
	onCreate  func(*models.Character)
}

// NewCreateCharacter 创建角色创建工具
func NewCreateCharacter(directory CharacterDirectory, onCreate func(*models.Character)) *CreateCharacterTool {
	return &CreateCharacterTool{directory: directory, onCreate: onCreate}
}

func (t *CreateCharacterTool) Name() string { return "create_character" }

func (t *CreateCharacterTool) Description() string {
	return "Create a new NPC. Args: {\"name\": <character name>, \"description\": <full character description>}"
}

func (t *CreateCharacterTool) Call(_ context.Context, args map[string]interface{}) (string, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return "", err
	}

	if existing, err := t.directory.GetCharacter(name); err == nil && existing != nil {
		return fmt.Sprintf("Character %q already exists, not overwriting.", name), nil
	}

	character := models.NewCharacter(name, description)
	if err := t.directory.SaveCharacter(character); err != nil {
		return "", fmt.Errorf("保存角色 %s 失败: %w", name, err)
	}

	if t.onCreate != nil {
		t.onCreate(character)
	}
	return fmt.Sprintf("Created character %q.", name), nil
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("缺少参数 %s", key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("参数 %s 必须是非空字符串", key)
	}
	return strings.TrimSpace(s), nil
}
