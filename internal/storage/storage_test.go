// internal/storage/storage_test.go
package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
)

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestCharacterStoreRoundTrip(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))

	character := models.NewCharacter("Old Man Henderson", "a retired adventurer")
	require.NoError(t, store.SaveCharacter(character))

	loaded, err := store.GetCharacter("Old Man Henderson")
	require.NoError(t, err)
	assert.Equal(t, "Old Man Henderson", loaded.Name)
	assert.Equal(t, "a retired adventurer", loaded.Description())

	// 描述版本在持久化后保留
	character.AddDescription("a retired adventurer, now an innkeeper")
	require.NoError(t, store.SaveCharacter(character))

	loaded, err = store.GetCharacter("old man henderson")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.DescriptionVersionNumber())
	old, ok := loaded.DescriptionAtVersion(1)
	require.True(t, ok)
	assert.Equal(t, "a retired adventurer", old)
}

func TestCharacterStoreMissing(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))
	_, err := store.GetCharacter("nobody")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestCreateCharacterRejectsExisting(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))
	require.NoError(t, store.CreateCharacter(models.NewCharacter("Aria", "a bard")))

	err := store.CreateCharacter(models.NewCharacter("Aria", "an impostor"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))

	// 原有档案保持不变
	loaded, err := store.GetCharacter("Aria")
	require.NoError(t, err)
	assert.Equal(t, "a bard", loaded.Description())
}

func TestCreatePlayerRejectsExisting(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))
	require.NoError(t, store.CreatePlayer(models.NewPlayer("Ilya", "a scholar")))

	err := store.CreatePlayer(models.NewPlayer("Ilya", "an impostor"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
}

func TestListCharacterNames(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))

	names, err := store.ListCharacterNames()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.SaveCharacter(models.NewCharacter("Aria", "a bard")))
	require.NoError(t, store.SaveCharacter(models.NewCharacter("Boros", "a guard")))

	names, err = store.ListCharacterNames()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Aria", "Boros"}, names)
}

func TestPlayerStoreRoundTrip(t *testing.T) {
	store := NewCharacterStore(newTestStorage(t))

	require.NoError(t, store.SavePlayer(models.NewPlayer("Ilya", "a wandering scholar")))
	loaded, err := store.GetPlayer("Ilya")
	require.NoError(t, err)
	assert.Equal(t, "a wandering scholar", loaded.Description())
}

func TestTranscriptStoreRoundTrip(t *testing.T) {
	store := NewTranscriptStore(newTestStorage(t))

	player := models.NewPlayer("Ilya", "a scholar")
	conv := models.NewConversation("s1", player, []*models.Character{models.NewCharacter("Aria", "a bard")})
	conv.AppendMessage(models.NewHumanMessage("Ilya", "hello"))
	conv.AppendMessage(models.NewAIMessage("Aria", "well met"))

	require.NoError(t, store.SaveConversation(conv))
	assert.True(t, store.ConversationExists("s1"))

	loaded, err := store.LoadConversation("s1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, conv.Messages[0].ID, loaded.Messages[0].ID)
	assert.Equal(t, "well met", loaded.Messages[1].Content)

	ids, err := store.ListConversationIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestTranscriptStoreRejectsEmptyID(t *testing.T) {
	store := NewTranscriptStore(newTestStorage(t))
	err := store.SaveConversation(&models.Conversation{})
	require.Error(t, err)
	assert.True(t, apperrors.IsDataIntegrityError(err))
}

func TestTranscriptStoreMissing(t *testing.T) {
	store := NewTranscriptStore(newTestStorage(t))
	_, err := store.LoadConversation("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	fs := newTestStorage(t)

	require.NoError(t, fs.SaveJSONFile("dir", "f.json", map[string]string{"v": "one"}))
	require.NoError(t, fs.SaveJSONFile("dir", "f.json", map[string]string{"v": "two"}))

	var out map[string]string
	require.NoError(t, fs.LoadJSONFile("dir", "f.json", &out))
	assert.Equal(t, "two", out["v"])
}
