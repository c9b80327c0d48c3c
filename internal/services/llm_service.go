// internal/services/llm_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/semaphore"

	apperrors "github.com/IronMeerkat/dionysus/internal/errors"
	"github.com/IronMeerkat/dionysus/internal/llm"

	// 提供商通过 init 自注册
	_ "github.com/IronMeerkat/dionysus/internal/llm/providers/grok"
	_ "github.com/IronMeerkat/dionysus/internal/llm/providers/openrouter"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService 提供统一的大语言模型调用接口
// 内部持有进程级并发信号量：同一进程内所有会话共享一个模型调用上限
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	defaultModel  string
	isReady       bool
	readyState    string

	sem *semaphore.Weighted
}

// NewLLMService 创建并初始化模型服务
func NewLLMService(providerName string, providerConfig map[string]string, maxConcurrent int64) (*LLMService, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}

	service := &LLMService{
		sem: semaphore.NewWeighted(maxConcurrent),
	}

	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("提供者初始化失败: %v", err)
		return service, err
	}

	service.provider = provider
	service.providerName = providerName
	service.defaultModel = providerConfig["default_model"]
	service.isReady = true
	service.readyState = "ready"

	return service, nil
}

// NewEmptyLLMService 创建未就绪的空服务，所有调用返回 ErrLLMNotReady
func NewEmptyLLMService() *LLMService {
	return &LLMService{
		sem:        semaphore.NewWeighted(1),
		readyState: "未配置模型提供者",
	}
}

// IsReady 服务是否可用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady && s.provider != nil
}

// GetProviderName 当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

func (s *LLMService) currentProvider() (llm.Provider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if !s.isReady || s.provider == nil {
		return nil, fmt.Errorf("%w: %s", ErrLLMNotReady, s.readyState)
	}
	return s.provider, nil
}

// UpdateProvider 热切换提供者
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()
	s.provider = provider
	s.providerName = providerName
	s.defaultModel = providerConfig["default_model"]
	s.isReady = true
	s.readyState = "ready"
	return nil
}

// CompleteText 同步文本生成
// 提供者层面的失败统一包装为瞬态错误，由上层决定是否中止回合
func (s *LLMService) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, apperrors.NewTransientError("模型服务未就绪", err)
	}

	if req.Model == "" {
		req.Model = s.defaultModel
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.NewTransientError("等待模型配额时被取消", err)
	}
	defer s.sem.Release(1)

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		return nil, apperrors.NewTransientError("模型调用失败", err)
	}
	return resp, nil
}

// StreamCompletion 流式文本生成
// 信号量在流耗尽（通道关闭）后才释放，保证并发上限覆盖整个流周期
func (s *LLMService) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, apperrors.NewTransientError("模型服务未就绪", err)
	}

	if req.Model == "" {
		req.Model = s.defaultModel
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.NewTransientError("等待模型配额时被取消", err)
	}

	inner, err := provider.StreamCompletion(ctx, req)
	if err != nil {
		s.sem.Release(1)
		return nil, apperrors.NewTransientError("模型流式调用失败", err)
	}

	out := make(chan llm.StreamResponse)
	go func() {
		defer s.sem.Release(1)
		defer close(out)
		for chunk := range inner {
			out <- chunk
		}
	}()

	return out, nil
}

// CreateStructuredCompletion 结构化输出生成
// 结果是带标签的二分：成功时 out 被填充；解析失败返回 validation 类错误，
// 网络/提供者失败返回 transient 类错误。绝不依赖鸭子类型的字段访问
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, format *llm.ResponseFormat, out interface{}) error {
	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	resp, err := s.CompleteText(ctx, llm.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   structuredSystemPrompt,
		Temperature:    0.3,
		ResponseFormat: format,
	})
	if err != nil {
		return err
	}

	text := cleanJSONString(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return apperrors.NewValidationError(
			fmt.Sprintf("模型结构化输出解析失败，原始返回: %s", text), err)
	}

	return nil
}

// 清理JSON字符串，去除前后非JSON内容
var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\uFEFF", "",
	"\u00a0", " ",
	"\u2028", "\n",
	"\u2029", "\n",
)

func cleanJSONString(s string) string {
	if s == "" {
		return s
	}

	// 统一替换常见的噪声以及Markdown标记
	s = jsonNoiseReplacer.Replace(s)
	s = strings.TrimSpace(s)

	// 移除零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	// 查找第一个 { 或 [，将其之前的内容全部丢弃
	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}

	s = strings.TrimSpace(s[start:])
	if s == "" {
		return s
	}

	isArray := s[0] == '['

	// 简单的括号计数匹配
	balance := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}

		if char == '\\' {
			escaped = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if isArray {
				if char == '[' {
					balance++
				} else if char == ']' {
					balance--
				}
			} else {
				if char == '{' {
					balance++
				} else if char == '}' {
					balance--
				}
			}

			if balance == 0 {
				// 找到了匹配的结束符
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// 没找到匹配的结束符时回退：找最后一个
	end := -1
	if isArray {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}

	if end != -1 {
		return strings.TrimSpace(s[:end+1])
	}

	return strings.TrimSpace(s)
}
