package execution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cointrade/internal/config"
	"cointrade/internal/decision"
	"cointrade/internal/snapshot"
)

// Result 描述一次执行尝试的结果。执行失败不向上传播为错误，
// 而是作为结果的一部分持久化。
type Result struct {
	// Attempted 表示是否实际发起了下单。守卫拦截时为 false。
	Attempted bool
	// Succeeded 表示下单是否成功。
	Succeeded bool
	// Amount 为买入时的计价币金额或卖出时的基础币数量。
	Amount float64
	// Reason 记录未下单或失败的原因。
	Reason string
}

// Executor 将决策转化为订单。每个周期至多调用一次。
type Executor interface {
	Execute(ctx context.Context, d decision.Decision, snap snapshot.Snapshot) Result
}

// OrderClient 为下单所需的交易所接口。
type OrderClient interface {
	CreateMarketBuy(ctx context.Context, cost float64) error
	CreateMarketSell(ctx context.Context, amount float64) error
}

// LiveExecutor 对接真实交易所执行订单。
type LiveExecutor struct {
	cfg    config.TradingConfig
	client OrderClient
	logger *zap.Logger
}

// NewLiveExecutor 创建实盘执行器。
func NewLiveExecutor(cfg config.TradingConfig, client OrderClient, logger *zap.Logger) *LiveExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveExecutor{cfg: cfg, client: client, logger: logger}
}

var _ Executor = (*LiveExecutor)(nil)

// Execute 依据决策下市价单。持有决策与未通过金额守卫的决策不触达交易所。
func (e *LiveExecutor) Execute(ctx context.Context, d decision.Decision, snap snapshot.Snapshot) Result {
	plan := planOrder(e.cfg, d, snap)
	if !plan.proceed {
		e.logger.Info("执行守卫拦截",
			zap.String("action", d.Action),
			zap.String("reason", plan.reason),
		)
		return Result{Attempted: false, Succeeded: false, Amount: 0, Reason: plan.reason}
	}

	var err error
	switch d.Action {
	case decision.ActionBuy:
		err = e.client.CreateMarketBuy(ctx, plan.amount)
	case decision.ActionSell:
		err = e.client.CreateMarketSell(ctx, plan.amount)
	}

	if err != nil {
		e.logger.Error("下单失败",
			zap.String("action", d.Action),
			zap.Float64("amount", plan.amount),
			zap.Error(err),
		)
		return Result{
			Attempted: true,
			Succeeded: false,
			Amount:    plan.amount,
			Reason:    fmt.Sprintf("下单失败: %v", err),
		}
	}

	e.logger.Info("下单成功",
		zap.String("action", d.Action),
		zap.Float64("amount", plan.amount),
	)
	return Result{Attempted: true, Succeeded: true, Amount: plan.amount, Reason: "filled"}
}

// SimulatedExecutor 在模拟模式下按同样的守卫逻辑评估订单，但从不触达交易所。
type SimulatedExecutor struct {
	cfg    config.TradingConfig
	logger *zap.Logger
}

// NewSimulatedExecutor 创建模拟执行器。
func NewSimulatedExecutor(cfg config.TradingConfig, logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{cfg: cfg, logger: logger}
}

var _ Executor = (*SimulatedExecutor)(nil)

// Execute 模拟执行：守卫判定与实盘一致，通过守卫即视为成交。
func (e *SimulatedExecutor) Execute(_ context.Context, d decision.Decision, snap snapshot.Snapshot) Result {
	plan := planOrder(e.cfg, d, snap)
	if !plan.proceed {
		return Result{Attempted: false, Succeeded: false, Amount: 0, Reason: plan.reason}
	}

	e.logger.Info("模拟成交",
		zap.String("action", d.Action),
		zap.Float64("amount", plan.amount),
	)
	return Result{Attempted: true, Succeeded: true, Amount: plan.amount, Reason: "simulated fill"}
}

type orderPlan struct {
	proceed bool
	amount  float64
	reason  string
}

// planOrder 计算下单数量并执行最小金额守卫。
// 买入金额为可用计价币余额按比例扣除手续费后的数值；
// 卖出数量为可用基础币余额按比例计算，名义价值以快照价估算。
func planOrder(cfg config.TradingConfig, d decision.Decision, snap snapshot.Snapshot) orderPlan {
	switch d.Action {
	case decision.ActionHold:
		return orderPlan{proceed: false, reason: "hold decision"}

	case decision.ActionBuy:
		cost := snap.Balance.QuoteFree * d.Percentage / 100 * (1 - cfg.FeeRate)
		if cost < cfg.MinOrderNotional {
			return orderPlan{
				proceed: false,
				reason:  fmt.Sprintf("买入金额 %.2f 低于最小下单额 %.2f", cost, cfg.MinOrderNotional),
			}
		}
		return orderPlan{proceed: true, amount: cost}

	case decision.ActionSell:
		amount := snap.Balance.BaseFree * d.Percentage / 100
		notional := amount * snap.Price
		if notional < cfg.MinOrderNotional {
			return orderPlan{
				proceed: false,
				reason:  fmt.Sprintf("卖出名义价值 %.2f 低于最小下单额 %.2f", notional, cfg.MinOrderNotional),
			}
		}
		return orderPlan{proceed: true, amount: amount}

	default:
		return orderPlan{proceed: false, reason: fmt.Sprintf("未知决策动作: %q", d.Action)}
	}
}
