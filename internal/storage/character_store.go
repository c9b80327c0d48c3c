// internal/storage/character_store.go
package storage

import (
	"fmt"
	"strings"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
)

const (
	charactersDir = "characters"
	playersDir    = "players"
)

// CharacterStore 角色与玩家档案的持久化
// 每个角色一个JSON文件，文件名由显示名规范化而来
type CharacterStore struct {
	storage *FileStorage
}

// NewCharacterStore 创建角色存储
func NewCharacterStore(storage *FileStorage) *CharacterStore {
	return &CharacterStore{storage: storage}
}

// fileKey 把显示名规范化为文件名
func fileKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	return key
}

// SaveCharacter 保存角色档案
func (s *CharacterStore) SaveCharacter(character *models.Character) error {
	if character.Name == "" {
		return fmt.Errorf("角色名不能为空")
	}
	return s.storage.SaveJSONFile(charactersDir, fileKey(character.Name)+".json", character)
}

// CreateCharacter 仅当同名角色不存在时保存，存在则返回冲突错误
func (s *CharacterStore) CreateCharacter(character *models.Character) error {
	if character.Name != "" && s.storage.FileExists(charactersDir, fileKey(character.Name)+".json") {
		return apperrors.NewConflictError(fmt.Sprintf("同名角色 %s 已存在", character.Name), nil)
	}
	return s.SaveCharacter(character)
}

// GetCharacter 按名称加载角色档案
func (s *CharacterStore) GetCharacter(name string) (*models.Character, error) {
	key := fileKey(name) + ".json"
	if !s.storage.FileExists(charactersDir, key) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("角色 %s 不存在", name), nil)
	}
	var character models.Character
	if err := s.storage.LoadJSONFile(charactersDir, key, &character); err != nil {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("加载角色 %s 失败", name), err)
	}
	return &character, nil
}

// ListCharacterNames 列出所有已保存角色的名称
func (s *CharacterStore) ListCharacterNames() ([]string, error) {
	keys, err := s.storage.ListJSONFiles(charactersDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		var character models.Character
		if err := s.storage.LoadJSONFile(charactersDir, key+".json", &character); err != nil {
			continue
		}
		names = append(names, character.Name)
	}
	return names, nil
}

// SavePlayer 保存玩家档案
func (s *CharacterStore) SavePlayer(player *models.Player) error {
	if player.Name == "" {
		return fmt.Errorf("玩家名不能为空")
	}
	return s.storage.SaveJSONFile(playersDir, fileKey(player.Name)+".json", player)
}

// CreatePlayer 仅当同名玩家不存在时保存，存在则返回冲突错误
func (s *CharacterStore) CreatePlayer(player *models.Player) error {
	if player.Name != "" && s.storage.FileExists(playersDir, fileKey(player.Name)+".json") {
		return apperrors.NewConflictError(fmt.Sprintf("同名玩家 %s 已存在", player.Name), nil)
	}
	return s.SavePlayer(player)
}

// GetPlayer 按名称加载玩家档案
func (s *CharacterStore) GetPlayer(name string) (*models.Player, error) {
	key := fileKey(name) + ".json"
	if !s.storage.FileExists(playersDir, key) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("玩家 %s 不存在", name), nil)
	}
	var player models.Player
	if err := s.storage.LoadJSONFile(playersDir, key, &player); err != nil {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("加载玩家 %s 失败", name), err)
	}
	return &player, nil
}

// ListPlayerNames 列出所有已保存玩家的名称
func (s *CharacterStore) ListPlayerNames() ([]string, error) {
	keys, err := s.storage.ListJSONFiles(playersDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		var player models.Player
		if err := s.storage.LoadJSONFile(playersDir, key+".json", &player); err != nil {
			continue
		}
		names = append(names, player.Name)
	}
	return names, nil
}
