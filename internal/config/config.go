// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 存储应用配置
type Config struct {
	Port      string
	DataDir   string
	LogDir    string
	DebugMode bool

	// LLM相关配置
	LLMProvider      string
	XAIAPIKey        string
	OpenRouterAPIKey string
	DefaultModel     string

	// 进程级模型并发上限，跨会话共享
	MaxConcurrentLLM int

	// 记忆服务配置
	MemoryServiceURL string
	LoreWorld        string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		DebugMode:        getEnvBool("DEBUG_MODE", true),
		LLMProvider:      getEnv("LLM_PROVIDER", "grok"),
		XAIAPIKey:        getEnv("XAI_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		DefaultModel:     getEnv("DEFAULT_MODEL", "grok-4-1-fast-reasoning"),
		MaxConcurrentLLM: getEnvInt("MAX_CONCURRENT_LLM", 8),
		MemoryServiceURL: getEnv("MEMORY_SERVICE_URL", "http://localhost:8100"),
		LoreWorld:        getEnv("LORE_WORLD", "default"),
	}

	if config.XAIAPIKey == "" && config.OpenRouterAPIKey == "" {
		// 只记录警告，不返回错误
		log.Println("警告: 未设置模型API密钥，NPC回合将无法调用模型")
	}

	return config, nil
}

// LLMConfig 按当前提供者组装提供者初始化配置
func (c *Config) LLMConfig() map[string]string {
	cfg := map[string]string{
		"default_model": c.DefaultModel,
	}
	switch c.LLMProvider {
	case "openrouter":
		cfg["api_key"] = c.OpenRouterAPIKey
	default:
		cfg["api_key"] = c.XAIAPIKey
	}
	return cfg
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			log.Printf("警告: 创建目录失败 %s: %v", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("警告: 环境变量 %s 不是合法整数: %q", key, value)
		return defaultValue
	}
	return n
}
