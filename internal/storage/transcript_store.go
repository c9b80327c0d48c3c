// internal/storage/transcript_store.go
package storage

import (
	"fmt"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
)

const conversationsDir = "conversations"

// TranscriptStore 会话转录的持久化
type TranscriptStore struct {
	storage *FileStorage
}

// NewTranscriptStore 创建转录存储
func NewTranscriptStore(storage *FileStorage) *TranscriptStore {
	return &TranscriptStore{storage: storage}
}

// SaveConversation 保存整个会话转录
func (s *TranscriptStore) SaveConversation(conversation *models.Conversation) error {
	if conversation.ID == "" {
		return apperrors.NewDataIntegrityError("会话ID不能为空", nil)
	}
	return s.storage.SaveJSONFile(conversationsDir, conversation.ID+".json", conversation)
}

// LoadConversation 按ID加载会话转录
func (s *TranscriptStore) LoadConversation(id string) (*models.Conversation, error) {
	if !s.storage.FileExists(conversationsDir, id+".json") {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 不存在", id), nil)
	}
	var conversation models.Conversation
	if err := s.storage.LoadJSONFile(conversationsDir, id+".json", &conversation); err != nil {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("加载会话 %s 失败", id), err)
	}
	return &conversation, nil
}

// ConversationExists 检查会话是否存在
func (s *TranscriptStore) ConversationExists(id string) bool {
	return s.storage.FileExists(conversationsDir, id+".json")
}

// ListConversationIDs 列出所有已保存会话的ID
func (s *TranscriptStore) ListConversationIDs() ([]string, error) {
	return s.storage.ListJSONFiles(conversationsDir)
}
