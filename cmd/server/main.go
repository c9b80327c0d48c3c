// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IronMeerkat/dionysus/internal/api"
	"github.com/IronMeerkat/dionysus/internal/app"
	"github.com/IronMeerkat/dionysus/internal/config"
	"github.com/IronMeerkat/dionysus/internal/di"
	"github.com/IronMeerkat/dionysus/internal/services"
	"github.com/IronMeerkat/dionysus/internal/utils"
)

func main() {
	log.Println("🚀 启动 Dionysus 服务器...")

	// 1. 加载基础配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 配置加载完成，端口: %s", cfg.Port)

	// 2. 创建必要的目录
	createDirectories(cfg)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化日志
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "dionysus.log")); err != nil {
		log.Printf("⚠️ 初始化日志文件失败，仅输出到控制台: %v", err)
	}

	// 4. 初始化所有服务（按依赖顺序）并注册进容器
	container := di.NewContainer()
	if err := app.InitServices(cfg, container); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(container.GetNames()))

	if llmService, ok := container.Get("llm").(*services.LLMService); ok && !llmService.IsReady() {
		log.Println("⚠️ LLM服务未就绪，请检查API密钥配置")
	}

	// 5. 设置路由
	router, err := api.SetupRouter(cfg, container)
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	// 6. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", cfg.Port)
	setupGracefulShutdown(router, cfg.Port, container)
}

// setupGracefulShutdown 启动服务器并在收到信号时优雅关闭
func setupGracefulShutdown(router *gin.Engine, port string, container *di.Container) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ 服务器强制关闭: %v", err)
	}

	// 等待在途的记忆写入，避免丢失最后一轮的情景记忆
	if sessions, ok := container.Get("sessions").(*services.SessionService); ok {
		for _, id := range sessions.SessionIDs() {
			if session, exists := sessions.GetSession(id); exists {
				session.WaitForMemoryInserts()
			}
		}
	}
	if wsManager, ok := container.Get("ws_manager").(*api.WebSocketManager); ok {
		wsManager.Shutdown()
	}

	log.Println("✅ 服务器优雅关闭完成")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "conversations"),
		filepath.Join(cfg.DataDir, "characters"),
		filepath.Join(cfg.DataDir, "players"),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
