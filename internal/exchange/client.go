package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"cointrade/internal/config"
)

// Credentials 为账户级 API 密钥。内容不得写入日志。
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Client 负责与 Upbit 交互并实现重试机制。一个 Client 绑定一个账户。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Upbit
	symbol   string
	base     string
	quote    string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造 Upbit 客户端。creds 为空时仅能访问公开行情接口。
func NewClient(cfg config.ExchangeConfig, creds Credentials, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	base, quote, err := splitSymbol(cfg.Market)
	if err != nil {
		return nil, err
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if creds.AccessKey != "" {
		userConfig["apiKey"] = creds.AccessKey
	}
	if creds.SecretKey != "" {
		userConfig["secret"] = creds.SecretKey
	}

	ex := ccxt.NewUpbit(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		symbol:   cfg.Market,
		base:     base,
		quote:    quote,
	}, nil
}

// Symbol 返回交易对符号。
func (c *Client) Symbol() string {
	return c.symbol
}

// BaseCurrency 返回基础币种，如 BTC。
func (c *Client) BaseCurrency() string {
	return c.base
}

// QuoteCurrency 返回报价币种，如 KRW。
func (c *Client) QuoteCurrency() string {
	return c.quote
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV

	err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", timeframe), func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			c.symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		candles = append(candles, Candle{
			Timestamp: ts,
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// FetchOrderBook 获取订单簿快照。
func (c *Client) FetchOrderBook(ctx context.Context, depth int64) (OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = 15
	}

	var raw ccxt.OrderBook
	err := c.callWithRetry(ctx, "fetch_order_book", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		orderBook, err := c.exchange.FetchOrderBook(
			c.symbol,
			ccxt.WithFetchOrderBookLimit(depth),
		)
		if err != nil {
			return err
		}

		raw = orderBook
		return nil
	})
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	return convertOrderBook(c.symbol, raw), nil
}

// FetchLastPrice 获取最新成交价，供波动监控与卖出估值使用。
func (c *Client) FetchLastPrice(ctx context.Context) (float64, error) {
	var price float64

	err := c.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		ticker, err := c.exchange.FetchTicker(c.symbol)
		if err != nil {
			return err
		}

		switch {
		case ticker.Last != nil && *ticker.Last > 0:
			price = *ticker.Last
		case ticker.Close != nil && *ticker.Close > 0:
			price = *ticker.Close
		default:
			return fmt.Errorf("行情数据缺少最新成交价: %s", c.symbol)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return price, nil
}

// FetchBalance 获取账户两侧可用余额。
func (c *Client) FetchBalance(ctx context.Context) (Balance, error) {
	var raw ccxt.Balances

	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		balances, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}

		raw = balances
		return nil
	})
	if err != nil {
		return Balance{}, err
	}

	return Balance{
		QuoteFree: asFloat(raw.Free[c.quote]),
		BaseFree:  asFloat(raw.Free[c.base]),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// CreateMarketBuy 以成交额下市价买单。amount 为报价币种金额。
func (c *Client) CreateMarketBuy(ctx context.Context, cost float64) error {
	return c.callOnce(ctx, "create_market_buy", func() error {
		// Upbit 的市价买单以金额而非数量计价。
		_, err := c.exchange.CreateMarketOrder(c.symbol, "buy", cost,
			ccxt.WithCreateMarketOrderParams(map[string]interface{}{
				"createMarketBuyOrderRequiresPrice": false,
			}),
		)
		return err
	})
}

// CreateMarketSell 以数量下市价卖单。amount 为基础币种数量。
func (c *Client) CreateMarketSell(ctx context.Context, amount float64) error {
	return c.callOnce(ctx, "create_market_sell", func() error {
		_, err := c.exchange.CreateMarketOrder(c.symbol, "sell", amount)
		return err
	})
}

// callOnce 执行不可重试的写操作。下单失败交由上层按执行失败处理，绝不自动重发。
func (c *Client) callOnce(ctx context.Context, operation string, fn func() error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := fn()
	if err != nil {
		normalizedErr, _ := c.classifyError(err)
		c.logger.Error("交易所写操作失败",
			zap.String("operation", operation),
			zap.Duration("latency", time.Since(start)),
			zap.Error(normalizedErr),
		)
		return normalizedErr
	}
	return nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("symbol", c.symbol))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func convertOrderBook(symbol string, ob ccxt.OrderBook) OrderBookSnapshot {
	bids := make([]OrderBookLevel, 0, len(ob.Bids))
	for _, level := range ob.Bids {
		if len(level) < 2 {
			continue
		}
		bids = append(bids, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	asks := make([]OrderBookLevel, 0, len(ob.Asks))
	for _, level := range ob.Asks {
		if len(level) < 2 {
			continue
		}
		asks = append(asks, OrderBookLevel{
			Price:  level[0],
			Amount: level[1],
		})
	}

	var ts time.Time
	if ob.Timestamp != nil {
		ts = time.UnixMilli(*ob.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: ts,
	}
}

func splitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.TrimSpace(symbol), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("非法交易对符号: %q", symbol)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// asFloat 兼容 ccxt 余额字段的多种数值表示。
func asFloat(v interface{}) float64 {
	switch value := v.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case *float64:
		if value == nil {
			return 0
		}
		return *value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	default:
		return 0
	}
}
