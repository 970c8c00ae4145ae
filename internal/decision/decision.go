package decision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// 决策动作。
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// 风险等级。
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Decision 为模型输出的交易决策。
type Decision struct {
	Action     string  `json:"decision"`
	Percentage float64 `json:"percentage"`
	Reason     string  `json:"reason"`
	RiskLevel  string  `json:"risk_level"`
	Confidence int     `json:"confidence"`
}

// Fallback 返回保守的持有决策，用于模型不可用或输出非法的场景。
func Fallback(reason string) Decision {
	return Decision{
		Action:     ActionHold,
		Percentage: 0,
		Reason:     reason,
		RiskLevel:  RiskHigh,
		Confidence: 0,
	}
}

// Validate 校验决策字段的合法性。
func (d Decision) Validate() error {
	switch d.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("非法决策动作: %q", d.Action)
	}

	if d.Percentage < 0 || d.Percentage > 100 {
		return fmt.Errorf("决策比例越界: %f", d.Percentage)
	}

	switch d.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("非法风险等级: %q", d.RiskLevel)
	}

	return nil
}

// Normalize 归一化决策：持有动作强制比例为0。
func (d Decision) Normalize() Decision {
	if d.Action == ActionHold {
		d.Percentage = 0
	}
	return d
}

// parseDecision 从模型原始输出中截取 JSON 并解析为合法决策。
func parseDecision(raw string) (Decision, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Decision{}, fmt.Errorf("模型输出不含 JSON 对象: %q", truncate(raw, 200))
	}

	var d Decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
		return Decision{}, fmt.Errorf("解析决策 JSON 失败: %w", err)
	}

	d.Action = strings.ToLower(strings.TrimSpace(d.Action))
	d.RiskLevel = strings.ToLower(strings.TrimSpace(d.RiskLevel))

	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d.Normalize(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
