// internal/tools/tools.go
package tools

import (
	"context"
	"fmt"
	"strings"
)

// Tool 可被代理循环调用的单个工具
// Call 的参数来自模型产出的JSON对象，实现负责自己的参数校验
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry 工具注册表，保持注册顺序以便稳定渲染目录
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry 创建工具注册表
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register 注册工具，同名覆盖
func (r *Registry) Register(tool Tool) {
	name := tool.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Get 按名称查找工具
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names 按注册顺序返回工具名
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// Catalog 渲染给提示词用的工具目录
func (r *Registry) Catalog() string {
	var sb strings.Builder
	for _, name := range r.order {
		tool := r.tools[name]
		sb.WriteString(fmt.Sprintf("- %s: %s\n", tool.Name(), tool.Description()))
	}
	return strings.TrimRight(sb.String(), "\n")
}
