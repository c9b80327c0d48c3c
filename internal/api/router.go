// internal/api/router.go
package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IronMeerkat/dionysus/internal/config"
	"github.com/IronMeerkat/dionysus/internal/di"
	"github.com/IronMeerkat/dionysus/internal/services"
	"github.com/IronMeerkat/dionysus/internal/storage"
)

// SetupRouter 配置HTTP路由
func SetupRouter(cfg *config.Config, container *di.Container) (*gin.Engine, error) {
	sessionService, ok := container.Get("sessions").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("会话服务未正确初始化")
	}

	characterStore, ok := container.Get("characters").(*storage.CharacterStore)
	if !ok {
		return nil, fmt.Errorf("角色存储未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	wsManager, ok := container.Get("ws_manager").(*WebSocketManager)
	if !ok {
		return nil, fmt.Errorf("WebSocket管理器未正确初始化")
	}

	handler := NewHandler(sessionService, characterStore, llmService, wsManager)
	wsHandler := NewWebSocketHandler(wsManager, sessionService)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(corsMiddleware())
	r.Use(RateLimitByIP(NewRateLimiter(), 120, time.Minute))

	// WebSocket 支持
	r.GET("/ws/session/:session_id", wsHandler.SessionWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/health", handler.HealthCheck)

		// ===============================
		// 角色相关路由
		// ===============================
		charactersGroup := api.Group("/characters")
		{
			charactersGroup.GET("", handler.GetCharacters)
			charactersGroup.POST("", handler.CreateCharacter)
			charactersGroup.GET("/:name", handler.GetCharacter)
			charactersGroup.PUT("/:name/description", handler.UpdateCharacterDescription)
		}

		// ===============================
		// 玩家相关路由
		// ===============================
		playersGroup := api.Group("/players")
		{
			playersGroup.GET("", handler.GetPlayers)
			playersGroup.POST("", handler.CreatePlayer)
			playersGroup.GET("/:name", handler.GetPlayer)
			playersGroup.PUT("/:name/description", handler.UpdatePlayerDescription)
		}

		// ===============================
		// 会话相关路由
		// ===============================
		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.GET("", handler.GetSessions)
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.GET("/:session_id", handler.GetSession)
			sessionsGroup.DELETE("/:session_id", handler.DeleteSession)
			sessionsGroup.GET("/:session_id/conversation", handler.GetConversation)
			sessionsGroup.GET("/:session_id/location", handler.GetLocation)
			sessionsGroup.PUT("/:session_id/location", handler.SetLocation)
			sessionsGroup.GET("/:session_id/story_background", handler.GetStoryBackground)
			sessionsGroup.PUT("/:session_id/story_background", handler.SetStoryBackground)
		}

		// ===============================
		// 状态相关路由
		// ===============================
		api.GET("/llm/status", handler.GetLLMStatus)
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
