// internal/emotion/emotion.go
package emotion

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// 情绪维度取值的边界
const (
	MinValue = -20
	MaxValue = 20
)

// Dimension 命名的情绪维度
type Dimension string

const (
	Love    Dimension = "love"
	Hate    Dimension = "hate"
	Fear    Dimension = "fear"
	Joy     Dimension = "joy"
	Sadness Dimension = "sadness"
	Hope    Dimension = "hope"
)

// Dimensions 固定但可扩展的维度集合
var Dimensions = []Dimension{Love, Hate, Fear, Joy, Sadness, Hope}

// Delta 一次情绪更新的增量
// 指针字段用于区分"未给出"和"增量为零"：缺失的维度保持不变
type Delta struct {
	Love    *int `json:"love,omitempty"`
	Hate    *int `json:"hate,omitempty"`
	Fear    *int `json:"fear,omitempty"`
	Joy     *int `json:"joy,omitempty"`
	Sadness *int `json:"sadness,omitempty"`
	Hope    *int `json:"hope,omitempty"`
}

// fields 以维度为键展开非空字段
func (d Delta) fields() map[Dimension]int {
	out := make(map[Dimension]int)
	if d.Love != nil {
		out[Love] = *d.Love
	}
	if d.Hate != nil {
		out[Hate] = *d.Hate
	}
	if d.Fear != nil {
		out[Fear] = *d.Fear
	}
	if d.Joy != nil {
		out[Joy] = *d.Joy
	}
	if d.Sadness != nil {
		out[Sadness] = *d.Sadness
	}
	if d.Hope != nil {
		out[Hope] = *d.Hope
	}
	return out
}

// IsEmpty 是否没有任何维度的增量
func (d Delta) IsEmpty() bool {
	return len(d.fields()) == 0
}

// State 单个角色的情绪状态
// 所有维度始终被钳制在 [MinValue, MaxValue] 区间内
type State struct {
	mu     sync.RWMutex
	values map[Dimension]int
}

// NewState 创建全零情绪状态
func NewState() *State {
	return &State{values: make(map[Dimension]int)}
}

func clamp(v int) int {
	if v < MinValue {
		return MinValue
	}
	if v > MaxValue {
		return MaxValue
	}
	return v
}

// Apply 应用一次增量，逐维度相加后重新钳制
func (s *State) Apply(delta Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for dim, dv := range delta.fields() {
		s.values[dim] = clamp(s.values[dim] + dv)
	}
}

// Get 读取某一维度的当前值，未被触碰过的维度为 0
func (s *State) Get(dim Dimension) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[dim]
}

// Snapshot 返回已被触碰过的维度的拷贝
func (s *State) Snapshot() map[Dimension]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Dimension]int, len(s.values))
	for dim, v := range s.values {
		out[dim] = v
	}
	return out
}

// Describe 生成提示词用的多行文本，例如 "fear: 5"
// 只包含被触碰过的维度，按名称排序保证稳定输出
func (s *State) Describe() string {
	snapshot := s.Snapshot()
	if len(snapshot) == 0 {
		return ""
	}
	dims := make([]string, 0, len(snapshot))
	for dim := range snapshot {
		dims = append(dims, string(dim))
	}
	sort.Strings(dims)
	lines := make([]string, 0, len(dims))
	for _, dim := range dims {
		lines = append(lines, fmt.Sprintf("%s: %d", dim, snapshot[Dimension(dim)]))
	}
	return strings.Join(lines, "\n")
}

// Registry 以角色名为键的情绪状态注册表
// 每个角色名对应进程生命周期内的唯一状态实例，首次访问时惰性创建
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry 创建空的情绪注册表
func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*State)}
}

// For 获取指定角色的情绪状态，不存在时创建
func (r *Registry) For(name string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[name]
	if !ok {
		state = NewState()
		r.states[name] = state
	}
	return state
}
