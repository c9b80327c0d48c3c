// internal/tools/dice.go
package tools

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
)

// DiceTool 掷若干个同面数的骰子
// roller 可替换以便测试得到确定的点数
type DiceTool struct {
	sides  int
	roller func(sides int) int
}

// NewD20 二十面骰
func NewD20() *DiceTool { return newDice(20) }

// NewD10 十面骰
func NewD10() *DiceTool { return newDice(10) }

// NewD6 六面骰
func NewD6() *DiceTool { return newDice(6) }

func newDice(sides int) *DiceTool {
	return &DiceTool{
		sides:  sides,
		roller: func(sides int) int { return rand.Intn(sides) + 1 },
	}
}

func (t *DiceTool) Name() string {
	return fmt.Sprintf("roll_d%d", t.sides)
}

func (t *DiceTool) Description() string {
	return fmt.Sprintf("Roll one or more %d-sided dice. Args: {\"count\": <number of dice, default 1>}", t.sides)
}

// Call 掷骰并返回各骰点数与总和
// count 缺失按1处理，非法或超出 [1,100] 范围返回错误
func (t *DiceTool) Call(_ context.Context, args map[string]interface{}) (string, error) {
	count := 1
	if raw, ok := args["count"]; ok {
		// JSON数字解码为float64
		f, ok := raw.(float64)
		if !ok {
			return "", fmt.Errorf("count 必须是数字，得到 %T", raw)
		}
		count = int(f)
	}
	if count < 1 || count > 100 {
		return "", fmt.Errorf("count 必须在 1 到 100 之间，得到 %d", count)
	}

	rolls := make([]string, 0, count)
	total := 0
	for i := 0; i < count; i++ {
		roll := t.roller(t.sides)
		total += roll
		rolls = append(rolls, fmt.Sprintf("%d", roll))
	}

	if count == 1 {
		return fmt.Sprintf("Rolled 1d%d: %s", t.sides, rolls[0]), nil
	}
	return fmt.Sprintf("Rolled %dd%d: %s (total %d)", count, t.sides, strings.Join(rolls, ", "), total), nil
}
