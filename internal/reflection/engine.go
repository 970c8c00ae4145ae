package reflection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cointrade/internal/history"
)

// HistoryWindow 为参与回顾的最近记录条数。
const HistoryWindow = 6

// Reflection 为基于近期历史的交易回顾，用于下一轮决策的提示词上下文。
type Reflection struct {
	StrategyAnalysis       string
	KeyPatterns            string
	ImprovementSuggestions string
}

// InsufficientHistory 返回历史不足时的默认回顾。
func InsufficientHistory() Reflection {
	return Reflection{
		StrategyAnalysis:       "No recent trades available",
		KeyPatterns:            "Cannot identify patterns",
		ImprovementSuggestions: "Insufficient trading history",
	}
}

// Critic 可选地对确定性回顾做二次加工，失败时上层回退到草稿。
type Critic interface {
	Critique(ctx context.Context, records []history.Record, draft Reflection) (Reflection, error)
}

// Engine 依据最近若干条周期记录生成回顾。核心逻辑为确定性统计，
// 配置 Critic 时由其润色，Critic 失败不阻断。
type Engine struct {
	critic Critic
	logger *zap.Logger
}

// NewEngine 创建回顾引擎。critic 可为 nil。
func NewEngine(critic Critic, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{critic: critic, logger: logger}
}

// Summarize 对给定记录（从新到旧）生成回顾。记录为空时返回默认回顾。
func (e *Engine) Summarize(ctx context.Context, records []history.Record) Reflection {
	if len(records) == 0 {
		return InsufficientHistory()
	}
	if len(records) > HistoryWindow {
		records = records[:HistoryWindow]
	}

	draft := summarize(records)

	if e.critic == nil {
		return draft
	}

	refined, err := e.critic.Critique(ctx, records, draft)
	if err != nil {
		e.logger.Warn("回顾润色失败，使用确定性结果", zap.Error(err))
		return draft
	}
	if refined.StrategyAnalysis == "" || refined.KeyPatterns == "" || refined.ImprovementSuggestions == "" {
		e.logger.Warn("回顾润色结果不完整，使用确定性结果")
		return draft
	}
	return refined
}

type tradeOutcome struct {
	action    string
	movePct   float64
	favorable bool
}

// summarize 做确定性统计：以最近一次观察价为基准评估每笔成交的走向。
func summarize(records []history.Record) Reflection {
	latestPrice := records[0].Price

	var (
		executed   []tradeOutcome
		buys       int
		sells      int
		holds      int
		volatility int
		highRisk   int
	)

	for _, rec := range records {
		switch rec.Action {
		case "buy":
			buys++
		case "sell":
			sells++
		default:
			holds++
		}
		if rec.Trigger == "volatility" {
			volatility++
		}
		if rec.RiskLevel == "high" {
			highRisk++
		}

		if !rec.ExecSucceeded || rec.Price <= 0 || latestPrice <= 0 {
			continue
		}

		// 买入后价格上行、卖出后价格下行均视为有利。
		movePct := (latestPrice - rec.Price) / rec.Price * 100
		favorable := movePct >= 0
		if rec.Action == "sell" {
			favorable = movePct <= 0
		}
		executed = append(executed, tradeOutcome{
			action:    rec.Action,
			movePct:   movePct,
			favorable: favorable,
		})
	}

	return Reflection{
		StrategyAnalysis:       analysisLine(len(records), buys, sells, holds, executed),
		KeyPatterns:            patternsLine(len(records), buys, sells, holds, volatility, highRisk),
		ImprovementSuggestions: suggestionsLine(executed, holds, len(records)),
	}
}

func analysisLine(total, buys, sells, holds int, executed []tradeOutcome) string {
	if len(executed) == 0 {
		return fmt.Sprintf("Last %d cycles produced no executed trades (%d buy, %d sell, %d hold decisions)", total, buys, sells, holds)
	}

	favorable := 0
	var sumMove float64
	for _, o := range executed {
		if o.favorable {
			favorable++
		}
		sumMove += o.movePct
	}
	avgMove := sumMove / float64(len(executed))

	return fmt.Sprintf(
		"Executed %d trades in the last %d cycles (%d buy, %d sell); %d of %d look favorable at the current price, average move since entry %.2f%%",
		len(executed), total, buys, sells, favorable, len(executed), avgMove,
	)
}

func patternsLine(total, buys, sells, holds, volatility, highRisk int) string {
	var parts []string

	dominant := "hold"
	max := holds
	if buys > max {
		dominant, max = "buy", buys
	}
	if sells > max {
		dominant = "sell"
	}
	parts = append(parts, fmt.Sprintf("dominant action is %s", dominant))

	if volatility > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d cycles were volatility-triggered", volatility, total))
	}
	if highRisk > total/2 {
		parts = append(parts, "risk level was rated high in most cycles")
	}

	return strings.Join(parts, "; ")
}

func suggestionsLine(executed []tradeOutcome, holds, total int) string {
	if len(executed) == 0 {
		if holds == total {
			return "Consider whether hold-only behavior reflects genuine uncertainty or overly strict thresholds"
		}
		return "Recent decisions did not pass execution guards; review position sizing against the minimum order size"
	}

	unfavorable := 0
	for _, o := range executed {
		if !o.favorable {
			unfavorable++
		}
	}
	if unfavorable*2 > len(executed) {
		return "More than half of recent trades moved against the position; tighten entry conditions and reduce position size"
	}
	return "Recent trades largely moved in the expected direction; keep position sizes moderate and avoid overtrading"
}
