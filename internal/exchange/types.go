package exchange

import "time"

const (
	// TimeframeDay 为日线周期，用于长周期趋势判断。
	TimeframeDay = "1d"
	// TimeframeHour 为小时周期，为主决策周期。
	TimeframeHour = "1h"
)

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel 表示盘口档位。
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// OrderBookSnapshot 为订单簿快照。
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
	Timestamp time.Time
}

// BidTotal 返回前 n 档买单量合计。
func (o OrderBookSnapshot) BidTotal(n int) float64 {
	return levelTotal(o.Bids, n)
}

// AskTotal 返回前 n 档卖单量合计。
func (o OrderBookSnapshot) AskTotal(n int) float64 {
	return levelTotal(o.Asks, n)
}

// Spread 返回买一卖一价差，数据不足时返回0。
func (o OrderBookSnapshot) Spread() float64 {
	if len(o.Bids) == 0 || len(o.Asks) == 0 {
		return 0
	}
	return o.Asks[0].Price - o.Bids[0].Price
}

func levelTotal(levels []OrderBookLevel, n int) float64 {
	if n <= 0 || n > len(levels) {
		n = len(levels)
	}
	total := 0.0
	for i := 0; i < n; i++ {
		total += levels[i].Amount
	}
	return total
}

// Balance 描述账户两侧余额。报价币种余额用于买入，基础币种余额用于卖出。
type Balance struct {
	QuoteFree float64
	BaseFree  float64
	FetchedAt time.Time
}
