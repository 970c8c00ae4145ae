package snapshot

import (
	"time"

	"cointrade/internal/exchange"
	"cointrade/internal/indicator"
	"cointrade/internal/sentiment"
)

// Snapshot 为单次决策输入的市场快照。任一必需字段采集失败即整体失败，
// 不允许以残缺快照进入决策。
type Snapshot struct {
	Symbol      string
	CollectedAt time.Time

	Price   float64
	Balance exchange.Balance

	// AvgEntryPrice 由历史成交推导，空仓时为 0。
	AvgEntryPrice float64

	DailySummary  indicator.Summary
	HourlySummary indicator.Summary
	OrderBook     exchange.OrderBookSnapshot

	FearGreed sentiment.FearGreed
	Headlines []sentiment.Headline

	// HoursSinceLastTrade 在 HasTraded 为 true 时有效。
	HoursSinceLastTrade float64
	HasTraded           bool

	// ChartPath 为本次快照渲染的图表产物路径，渲染失败时为空。
	ChartPath string
}
