// internal/memory/memory_test.go
package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IronMeerkat/dionysus/internal/models"
)

func TestMakeGroupID(t *testing.T) {
	assert.Equal(t, "memories--Aria", MemoriesGroup("Aria"))
	assert.Equal(t, "lore--default", LoreGroup("default"))
	// 空格和冒号被替换为下划线
	assert.Equal(t, "memories--Old_Man_Henderson", MemoriesGroup("Old Man Henderson"))
	assert.Equal(t, "lore--world_v2", MakeGroupID("lore", "world:v2"))
}

func TestJoinFacts(t *testing.T) {
	assert.Equal(t, "", JoinFacts(nil))
	assert.Equal(t, "a\nb", JoinFacts([]string{"a", "", "b"}))
}

func TestClientSearch(t *testing.T) {
	var captured searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(searchResponse{Facts: []string{"fact one", "fact two"}})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	facts, err := client.Search(context.Background(), "the tavern", []string{"memories--Aria"}, 20)
	require.NoError(t, err)

	assert.Equal(t, []string{"fact one", "fact two"}, facts)
	assert.Equal(t, "the tavern", captured.Query)
	assert.Equal(t, []string{"memories--Aria"}, captured.GroupIDs)
	assert.Equal(t, 20, captured.Limit)
}

func TestClientSearchEmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"facts": null}`))
	}))
	defer server.Close()

	facts, err := NewClient(server.URL).Search(context.Background(), "q", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestClientSearchTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Search(context.Background(), "q", nil, 10)
	assert.Error(t, err)
}

func TestClientInsert(t *testing.T) {
	var captured insertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/episodes", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	messages := []models.Message{
		models.NewHumanMessage("Ilya", "hello"),
		models.NewAIMessage("Aria", "well met"),
	}
	err := NewClient(server.URL).Insert(
		context.Background(), messages, "memories--Aria", "session:default", "from Aria's view")
	require.NoError(t, err)

	assert.Equal(t, "memories--Aria", captured.GroupID)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "Aria", captured.Messages[1].Speaker)
	assert.Equal(t, "well met", captured.Messages[1].Content)
}

func TestClientInsertSkipsEmptyWindow(t *testing.T) {
	// 空窗口不产生请求
	client := NewClient("http://127.0.0.1:1")
	assert.NoError(t, client.Insert(context.Background(), nil, "g", "", ""))
}
