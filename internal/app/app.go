// internal/app/app.go
package app

import (
	"fmt"

	"github.com/IronMeerkat/dionysus/internal/api"
	"github.com/IronMeerkat/dionysus/internal/config"
	"github.com/IronMeerkat/dionysus/internal/di"
	"github.com/IronMeerkat/dionysus/internal/memory"
	"github.com/IronMeerkat/dionysus/internal/services"
	"github.com/IronMeerkat/dionysus/internal/storage"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册进容器
//
// 顺序：存储 → LLM → 记忆网关 → 会话服务 → WebSocket管理器
func InitServices(cfg *config.Config, container *di.Container) error {
	// 1. 文件存储
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化文件存储失败: %w", err)
	}
	characterStore := storage.NewCharacterStore(fileStorage)
	transcriptStore := storage.NewTranscriptStore(fileStorage)
	container.Register("storage", fileStorage)
	container.Register("characters", characterStore)
	container.Register("transcripts", transcriptStore)

	// 2. LLM服务
	llmService, err := services.NewLLMService(
		cfg.LLMProvider, cfg.LLMConfig(), int64(cfg.MaxConcurrentLLM))
	if err != nil {
		utils.GetLogger().Warnf("⚠️ LLM服务初始化失败，以未就绪状态继续: %v", err)
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 3. 记忆网关
	gateway := memory.NewClient(cfg.MemoryServiceURL)
	container.Register("memory", gateway)

	// 4. 会话服务
	sessionService := services.NewSessionService(
		llmService, gateway, characterStore, transcriptStore, cfg.LoreWorld)
	container.Register("sessions", sessionService)

	// 5. WebSocket管理器
	container.Register("ws_manager", api.NewWebSocketManager())

	return nil
}
