package snapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cointrade/internal/exchange"
	"cointrade/internal/indicator"
	"cointrade/internal/sentiment"
)

const (
	dailyWindow   = 30
	hourlyWindow  = 48
	orderBookSize = 15
	dustThreshold = 1e-8
)

// MarketClient 为快照采集所需的行情与账户接口。
type MarketClient interface {
	Symbol() string
	FetchCandles(ctx context.Context, timeframe string, limit int64) ([]exchange.Candle, error)
	FetchOrderBook(ctx context.Context, depth int64) (exchange.OrderBookSnapshot, error)
	FetchLastPrice(ctx context.Context) (float64, error)
	FetchBalance(ctx context.Context) (exchange.Balance, error)
}

// SentimentClient 提供恐惧贪婪指数与新闻头条。
type SentimentClient interface {
	FetchFearGreed(ctx context.Context) (sentiment.FearGreed, error)
	FetchHeadlines(ctx context.Context) ([]sentiment.Headline, error)
}

// HistoryReader 提供从历史推导的账户上下文。
type HistoryReader interface {
	AvgBuyPrice(ctx context.Context, accountID string, dust float64) (float64, error)
	HoursSinceLastTrade(ctx context.Context, accountID string, now time.Time) (float64, bool, error)
}

// ChartRenderer 渲染图表产物。可为 nil。
type ChartRenderer interface {
	Render(symbol string, candles []exchange.Candle, at time.Time) (string, error)
}

// Collector 并发采集市场快照。一个 Collector 绑定一个账户。
type Collector struct {
	accountID  string
	market     MarketClient
	sentiment  SentimentClient
	history    HistoryReader
	chart      ChartRenderer
	calculator *indicator.Calculator
	logger     *zap.Logger
	nowFn      func() time.Time
}

// NewCollector 创建快照采集器。chart 可为 nil，表示不生成图表产物。
func NewCollector(
	accountID string,
	market MarketClient,
	sentimentClient SentimentClient,
	history HistoryReader,
	chart ChartRenderer,
	logger *zap.Logger,
) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		accountID:  accountID,
		market:     market,
		sentiment:  sentimentClient,
		history:    history,
		chart:      chart,
		calculator: indicator.NewCalculator(),
		logger:     logger.With(zap.String("account_id", accountID)),
		nowFn:      time.Now,
	}
}

// Collect 并发拉取全部快照数据。余额、K线、订单簿、最新价与恐惧贪婪指数为
// 必需项，任一失败则整体失败；新闻与图表为可选项，失败仅记录日志。
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Symbol:      c.market.Symbol(),
		CollectedAt: c.nowFn().UTC(),
	}

	var (
		dailyCandles  []exchange.Candle
		hourlyCandles []exchange.Candle
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		balance, err := c.market.FetchBalance(gctx)
		if err != nil {
			return fmt.Errorf("拉取余额失败: %w", err)
		}
		snap.Balance = balance
		return nil
	})

	g.Go(func() error {
		price, err := c.market.FetchLastPrice(gctx)
		if err != nil {
			return fmt.Errorf("拉取最新价失败: %w", err)
		}
		snap.Price = price
		return nil
	})

	g.Go(func() error {
		candles, err := c.market.FetchCandles(gctx, exchange.TimeframeDay, dailyWindow)
		if err != nil {
			return fmt.Errorf("拉取日K线失败: %w", err)
		}
		dailyCandles = candles
		return nil
	})

	g.Go(func() error {
		candles, err := c.market.FetchCandles(gctx, exchange.TimeframeHour, hourlyWindow)
		if err != nil {
			return fmt.Errorf("拉取小时K线失败: %w", err)
		}
		hourlyCandles = candles
		return nil
	})

	g.Go(func() error {
		orderBook, err := c.market.FetchOrderBook(gctx, orderBookSize)
		if err != nil {
			return fmt.Errorf("拉取订单簿失败: %w", err)
		}
		snap.OrderBook = orderBook
		return nil
	})

	g.Go(func() error {
		fearGreed, err := c.sentiment.FetchFearGreed(gctx)
		if err != nil {
			return fmt.Errorf("拉取恐惧贪婪指数失败: %w", err)
		}
		snap.FearGreed = fearGreed
		return nil
	})

	g.Go(func() error {
		headlines, err := c.sentiment.FetchHeadlines(gctx)
		if err != nil {
			// 新闻缺失不阻断快照。
			c.logger.Warn("拉取新闻头条失败", zap.Error(err))
			snap.Headlines = []sentiment.Headline{}
			return nil
		}
		snap.Headlines = headlines
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	daily, err := c.calculator.Compute(exchange.TimeframeDay, dailyCandles)
	if err != nil {
		return Snapshot{}, fmt.Errorf("计算日线指标失败: %w", err)
	}
	hourly, err := c.calculator.Compute(exchange.TimeframeHour, hourlyCandles)
	if err != nil {
		return Snapshot{}, fmt.Errorf("计算小时线指标失败: %w", err)
	}
	snap.DailySummary = daily
	snap.HourlySummary = hourly

	avgPrice, err := c.history.AvgBuyPrice(ctx, c.accountID, dustThreshold)
	if err != nil {
		return Snapshot{}, fmt.Errorf("推导持仓成本失败: %w", err)
	}
	snap.AvgEntryPrice = avgPrice

	hours, traded, err := c.history.HoursSinceLastTrade(ctx, c.accountID, snap.CollectedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("查询最近成交失败: %w", err)
	}
	snap.HoursSinceLastTrade = hours
	snap.HasTraded = traded

	if c.chart != nil {
		path, chartErr := c.chart.Render(snap.Symbol, hourlyCandles, snap.CollectedAt)
		if chartErr != nil {
			c.logger.Warn("渲染图表产物失败", zap.Error(chartErr))
		} else {
			snap.ChartPath = path
		}
	}

	return snap, nil
}
