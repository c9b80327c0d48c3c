// internal/tools/tools_test.go
package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IronMeerkat/dionysus/internal/models"
)

func TestDiceRoll(t *testing.T) {
	d20 := NewD20()
	d20.roller = func(sides int) int { return sides } // 固定掷出最大点

	result, err := d20.Call(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Rolled 1d20: 20", result)

	result, err = d20.Call(context.Background(), map[string]interface{}{"count": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, "Rolled 3d20: 20, 20, 20 (total 60)", result)
}

func TestDiceRollRejectsBadCount(t *testing.T) {
	d6 := NewD6()

	_, err := d6.Call(context.Background(), map[string]interface{}{"count": float64(0)})
	assert.Error(t, err)

	_, err = d6.Call(context.Background(), map[string]interface{}{"count": "two"})
	assert.Error(t, err)
}

func TestDiceRollInRange(t *testing.T) {
	d10 := NewD10()
	for i := 0; i < 100; i++ {
		roll := d10.roller(10)
		assert.GreaterOrEqual(t, roll, 1)
		assert.LessOrEqual(t, roll, 10)
	}
}

func TestRegistryCatalog(t *testing.T) {
	r := NewRegistry(NewD20(), NewD6())

	assert.Equal(t, []string{"roll_d20", "roll_d6"}, r.Names())

	tool, ok := r.Get("roll_d20")
	require.True(t, ok)
	assert.Equal(t, "roll_d20", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.Contains(t, r.Catalog(), "- roll_d20: ")
}

// fakeDirectory 内存角色目录
type fakeDirectory struct {
	characters map[string]*models.Character
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{characters: make(map[string]*models.Character)}
}

func (d *fakeDirectory) GetCharacter(name string) (*models.Character, error) {
	c, ok := d.characters[name]
	if !ok {
		return nil, fmt.Errorf("角色 %s 不存在", name)
	}
	return c, nil
}

func (d *fakeDirectory) SaveCharacter(c *models.Character) error {
	d.characters[c.Name] = c
	return nil
}

func (d *fakeDirectory) ListCharacterNames() ([]string, error) {
	names := make([]string, 0, len(d.characters))
	for name := range d.characters {
		names = append(names, name)
	}
	return names, nil
}

func TestCheckNPCExistence(t *testing.T) {
	dir := newFakeDirectory()
	dir.SaveCharacter(models.NewCharacter("Aria", "a bard"))
	tool := NewCheckNPCExistence(dir)

	result, err := tool.Call(context.Background(), map[string]interface{}{"name": "Aria"})
	require.NoError(t, err)
	assert.Contains(t, result, "exists")
	assert.Contains(t, result, "a bard")

	result, err = tool.Call(context.Background(), map[string]interface{}{"name": "Nobody"})
	require.NoError(t, err)
	assert.Contains(t, result, "No character")

	_, err = tool.Call(context.Background(), map[string]interface{}{})
	assert.Error(t, err)
}

func TestCreateCharacter(t *testing.T) {
	dir := newFakeDirectory()
	var created *models.Character
	tool := NewCreateCharacter(dir, func(c *models.Character) { created = c })

	result, err := tool.Call(context.Background(), map[string]interface{}{
		"name":        "Boros",
		"description": "a tired guard",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "Created")
	require.NotNil(t, created)
	assert.Equal(t, "Boros", created.Name)

	stored, err := dir.GetCharacter("Boros")
	require.NoError(t, err)
	assert.Equal(t, "a tired guard", stored.Description())
}

func TestCreateCharacterDoesNotOverwrite(t *testing.T) {
	dir := newFakeDirectory()
	dir.SaveCharacter(models.NewCharacter("Boros", "original"))
	tool := NewCreateCharacter(dir, nil)

	result, err := tool.Call(context.Background(), map[string]interface{}{
		"name":        "Boros",
		"description": "impostor",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "already exists")

	stored, _ := dir.GetCharacter("Boros")
	assert.Equal(t, "original", stored.Description())
}
