package history

import "time"

// Record 为一次交易周期的持久化行，写入后不可变更。
// 字段覆盖决策、成交后账户状态、回顾输入与触发上下文。
type Record struct {
	ID        int64
	AccountID string
	Timestamp time.Time

	Trigger        string
	PriceChangePct float64

	Action     string
	Percentage float64
	Reason     string
	RiskLevel  string
	Confidence int

	QuoteBalance  float64
	BaseBalance   float64
	AvgEntryPrice float64
	Price         float64

	ExecAttempted bool
	ExecSucceeded bool
	ExecAmount    float64
	ExecReason    string

	StrategyAnalysis       string
	KeyPatterns            string
	ImprovementSuggestions string

	ChartPath string
}

// ReflectionFields 为最近一次记录携带的回顾三元组。
type ReflectionFields struct {
	StrategyAnalysis       string
	KeyPatterns            string
	ImprovementSuggestions string
}
