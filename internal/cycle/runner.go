package cycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cointrade/internal/decision"
	"cointrade/internal/execution"
	"cointrade/internal/history"
	"cointrade/internal/reflection"
	"cointrade/internal/snapshot"
)

// 触发来源。
const (
	TriggerScheduled  = "scheduled"
	TriggerVolatility = "volatility"
	TriggerManual     = "manual"
)

// TriggerContext 描述本轮周期的触发来源。
type TriggerContext struct {
	Kind string
	// PriceChangePct 仅在波动触发时有效，为带符号的相对变化。
	PriceChangePct float64
}

var (
	// ErrDataUnavailable 表示快照采集失败，周期未进入决策阶段。
	ErrDataUnavailable = errors.New("市场快照不可用")
	// ErrPersistence 表示周期已完成但记录写入失败。
	ErrPersistence = errors.New("周期记录持久化失败")
)

// SnapshotProvider 采集市场快照。
type SnapshotProvider interface {
	Collect(ctx context.Context) (snapshot.Snapshot, error)
}

// DecisionProvider 产出交易决策。
type DecisionProvider interface {
	Decide(ctx context.Context, input decision.Input) (decision.Decision, error)
}

// Reflector 基于历史记录生成回顾。
type Reflector interface {
	Summarize(ctx context.Context, records []history.Record) reflection.Reflection
}

// HistoryStore 为周期所需的历史读写接口。
type HistoryStore interface {
	Append(ctx context.Context, rec history.Record) (int64, error)
	RecentRecords(ctx context.Context, accountID string, n int) ([]history.Record, error)
}

// Runner 串联单个账户的一轮交易周期：采集、回顾、决策、执行、持久化。
// 一个 Runner 绑定一个账户，同一账户的周期不会并发执行。
type Runner struct {
	accountID   string
	preferences []string

	snapshots SnapshotProvider
	reflector Reflector
	decider   DecisionProvider
	executor  execution.Executor
	store     HistoryStore
	logger    *zap.Logger
}

// NewRunner 创建周期执行器。
func NewRunner(
	accountID string,
	preferences []string,
	snapshots SnapshotProvider,
	reflector Reflector,
	decider DecisionProvider,
	executor execution.Executor,
	store HistoryStore,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		accountID:   accountID,
		preferences: preferences,
		snapshots:   snapshots,
		reflector:   reflector,
		decider:     decider,
		executor:    executor,
		store:       store,
		logger:      logger.With(zap.String("account_id", accountID)),
	}
}

// Run 执行一轮周期并返回持久化的记录。
//
// 快照采集失败时整轮中止，不产生任何记录与订单。决策失败降级为保守持有，
// 周期继续。执行结果无论成败都随记录落库；落库失败返回 ErrPersistence，
// 但已发生的订单不受影响。
func (r *Runner) Run(ctx context.Context, trig TriggerContext) (history.Record, error) {
	r.logger.Info("交易周期开始",
		zap.String("trigger", trig.Kind),
		zap.Float64("price_change_pct", trig.PriceChangePct),
	)

	snap, err := r.snapshots.Collect(ctx)
	if err != nil {
		r.logger.Error("快照采集失败，跳过本轮", zap.Error(err))
		return history.Record{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	recent, err := r.store.RecentRecords(ctx, r.accountID, reflection.HistoryWindow)
	if err != nil {
		// 历史读取失败不阻断周期，按无历史处理。
		r.logger.Warn("读取历史失败，按无历史回顾", zap.Error(err))
		recent = nil
	}
	refl := r.reflector.Summarize(ctx, recent)

	d, err := r.decider.Decide(ctx, decision.Input{
		Snapshot:    snap,
		Preferences: r.preferences,
		Reflection: decision.ReflectionNotes{
			StrategyAnalysis:       refl.StrategyAnalysis,
			KeyPatterns:            refl.KeyPatterns,
			ImprovementSuggestions: refl.ImprovementSuggestions,
		},
		Trigger:        trig.Kind,
		PriceChangePct: trig.PriceChangePct,
	})
	if err != nil {
		r.logger.Warn("决策失败，降级为持有", zap.Error(err))
		d = decision.Fallback(fmt.Sprintf("决策不可用: %v", err))
	}

	result := r.executor.Execute(ctx, d, snap)
	quoteAfter, baseAfter := postTradeBalances(snap, d, result)

	rec := history.Record{
		AccountID:      r.accountID,
		Timestamp:      snap.CollectedAt,
		Trigger:        trig.Kind,
		PriceChangePct: trig.PriceChangePct,

		Action:     d.Action,
		Percentage: d.Percentage,
		Reason:     d.Reason,
		RiskLevel:  d.RiskLevel,
		Confidence: d.Confidence,

		QuoteBalance:  quoteAfter,
		BaseBalance:   baseAfter,
		AvgEntryPrice: snap.AvgEntryPrice,
		Price:         snap.Price,

		ExecAttempted: result.Attempted,
		ExecSucceeded: result.Succeeded,
		ExecAmount:    result.Amount,
		ExecReason:    result.Reason,

		StrategyAnalysis:       refl.StrategyAnalysis,
		KeyPatterns:            refl.KeyPatterns,
		ImprovementSuggestions: refl.ImprovementSuggestions,

		ChartPath: snap.ChartPath,
	}

	id, err := r.store.Append(ctx, rec)
	if err != nil {
		r.logger.Error("周期记录写入失败", zap.Error(err))
		return rec, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rec.ID = id

	r.logger.Info("交易周期完成",
		zap.Int64("record_id", id),
		zap.String("action", d.Action),
		zap.Bool("attempted", result.Attempted),
		zap.Bool("succeeded", result.Succeeded),
	)
	return rec, nil
}

// postTradeBalances 依据执行结果估算成交后的两侧余额。
// 买入金额在计划阶段已扣除手续费，卖出所得按快照价估算。
func postTradeBalances(snap snapshot.Snapshot, d decision.Decision, result execution.Result) (quote, base float64) {
	quote = snap.Balance.QuoteFree
	base = snap.Balance.BaseFree

	if !result.Succeeded || snap.Price <= 0 {
		return quote, base
	}

	switch d.Action {
	case decision.ActionBuy:
		quote -= result.Amount
		base += result.Amount / snap.Price
	case decision.ActionSell:
		base -= result.Amount
		quote += result.Amount * snap.Price
	}
	return quote, base
}
