// internal/api/handlers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/models"
	"github.com/IronMeerkat/dionysus/internal/services"
	"github.com/IronMeerkat/dionysus/internal/storage"
)

// Handler 处理API请求
type Handler struct {
	Sessions   *services.SessionService
	Characters *storage.CharacterStore
	LLM        *services.LLMService
	WSManager  *WebSocketManager
}

// NewHandler 创建API处理器
func NewHandler(
	sessions *services.SessionService,
	characters *storage.CharacterStore,
	llm *services.LLMService,
	wsManager *WebSocketManager,
) *Handler {
	return &Handler{
		Sessions:   sessions,
		Characters: characters,
		LLM:        llm,
		WSManager:  wsManager,
	}
}

// ===============================
// 角色相关
// ===============================

// GetCharacters 列出所有角色名
func (h *Handler) GetCharacters(c *gin.Context) {
	names, err := h.Characters.ListCharacterNames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": names})
}

// GetCharacter 按名称获取角色档案
func (h *Handler) GetCharacter(c *gin.Context) {
	character, err := h.Characters.GetCharacter(c.Param("name"))
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "角色不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, character)
}

// CreateCharacterRequest 创建角色的请求体
type CreateCharacterRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// CreateCharacter 创建新角色
func (h *Handler) CreateCharacter(c *gin.Context) {
	var req CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	character := models.NewCharacter(req.Name, req.Description)
	if err := h.Characters.CreateCharacter(character); err != nil {
		if apperrors.IsConflictError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "同名角色已存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, character)
}

// UpdateDescriptionRequest 追加描述版本的请求体
type UpdateDescriptionRequest struct {
	Description string `json:"description" binding:"required"`
}

// UpdateCharacterDescription 追加角色描述的新版本
// 旧版本保留，档案的当前描述始终是最新版本
func (h *Handler) UpdateCharacterDescription(c *gin.Context) {
	character, err := h.Characters.GetCharacter(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "角色不存在"})
		return
	}

	var req UpdateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	character.AddDescription(req.Description)
	if err := h.Characters.SaveCharacter(character); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, character)
}

// ===============================
// 玩家相关
// ===============================

// GetPlayers 列出所有玩家名
func (h *Handler) GetPlayers(c *gin.Context) {
	names, err := h.Characters.ListPlayerNames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"players": names})
}

// GetPlayer 按名称获取玩家档案
func (h *Handler) GetPlayer(c *gin.Context) {
	player, err := h.Characters.GetPlayer(c.Param("name"))
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "玩家不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, player)
}

// CreatePlayer 创建新玩家
func (h *Handler) CreatePlayer(c *gin.Context) {
	var req CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	player := models.NewPlayer(req.Name, req.Description)
	if err := h.Characters.CreatePlayer(player); err != nil {
		if apperrors.IsConflictError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "同名玩家已存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, player)
}

// UpdatePlayerDescription 追加玩家描述的新版本
func (h *Handler) UpdatePlayerDescription(c *gin.Context) {
	player, err := h.Characters.GetPlayer(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "玩家不存在"})
		return
	}

	var req UpdateDescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	player.AddDescription(req.Description)
	if err := h.Characters.SavePlayer(player); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, player)
}

// ===============================
// 会话相关
// ===============================

// CreateSessionRequest 开局请求体
type CreateSessionRequest struct {
	Player     string   `json:"player" binding:"required"`
	Characters []string `json:"characters" binding:"required"`
}

// CreateSession 开一局新会话
// 角色列表的顺序决定每轮内NPC的发言顺序
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	session, err := h.Sessions.CreateSession(req.Player, req.Characters)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": session.ID,
		"characters": session.Table.CharacterNames(),
	})
}

// GetSessions 列出活跃会话ID
func (h *Handler) GetSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.Sessions.SessionIDs()})
}

// GetSession 获取会话概况
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":       session.ID,
		"characters":       session.Table.CharacterNames(),
		"location":         session.Table.Location(),
		"story_background": session.Table.StoryBackground(),
		"message_count":    len(session.Table.Messages()),
	})
}

// DeleteSession 销毁会话
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	if _, ok := h.Sessions.GetSession(sessionID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	h.Sessions.RemoveSession(sessionID)
	c.JSON(http.StatusOK, gin.H{"deleted": sessionID})
}

// GetConversation 获取会话转录
func (h *Handler) GetConversation(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, session.Conversation)
}

// sessionFieldRequest 会话场景字段的更新请求体
type sessionFieldRequest struct {
	Value string `json:"value" binding:"required"`
}

// GetLocation 获取当前地点
func (h *Handler) GetLocation(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": session.Table.Location()})
}

// SetLocation 更新当前地点
func (h *Handler) SetLocation(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	var req sessionFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	session.Table.SetLocation(req.Value)
	c.JSON(http.StatusOK, gin.H{"location": req.Value})
}

// GetStoryBackground 获取故事背景
func (h *Handler) GetStoryBackground(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"story_background": session.Table.StoryBackground()})
}

// SetStoryBackground 更新故事背景
func (h *Handler) SetStoryBackground(c *gin.Context) {
	session, ok := h.Sessions.GetSession(c.Param("session_id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
		return
	}

	var req sessionFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求数据: " + err.Error()})
		return
	}

	session.Table.SetStoryBackground(req.Value)
	c.JSON(http.StatusOK, gin.H{"story_background": req.Value})
}

// ===============================
// 状态相关
// ===============================

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	status := gin.H{
		"ready":    h.LLM.IsReady(),
		"provider": h.LLM.GetProviderName(),
	}
	if !h.LLM.IsReady() {
		status["reason"] = "LLM服务未配置API密钥"
	}
	c.JSON(http.StatusOK, status)
}

// GetWebSocketStatus 获取 WebSocket 连接状态
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.WSManager.GetStatus())
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
