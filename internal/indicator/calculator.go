package indicator

import (
	"fmt"
	"sync"

	talib "github.com/markcheno/go-talib"

	"cointrade/internal/exchange"
)

// minCandles 为一次指标计算要求的最少K线数量。
const minCandles = 30

// MACDResult 保存 MACD 关键值。
type MACDResult struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerResult 保存布林带数据。
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
}

// StochasticResult 保存随机指标。
type StochasticResult struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// VolumeResult 保存成交量相关统计。
type VolumeResult struct {
	Current   float64 `json:"current"`
	Average20 float64 `json:"average_20"`
	Ratio     float64 `json:"ratio"`
}

// Summary 为一次指标计算的汇总，按时间框架缓存。
type Summary struct {
	Timeframe     string           `json:"timeframe"`
	RSI           float64          `json:"rsi"`
	MACD          MACDResult       `json:"macd"`
	Bollinger     BollingerResult  `json:"bollinger"`
	Stochastic    StochasticResult `json:"stochastic"`
	ATR           float64          `json:"atr"`
	SMA20         float64          `json:"sma_20"`
	EMA12         float64          `json:"ema_12"`
	Volume        VolumeResult     `json:"volume"`
	Close         float64          `json:"close"`
	PreviousClose float64          `json:"previous_close"`
}

type cacheEntry struct {
	key     string
	summary Summary
}

// Calculator 提供技术指标计算并带有简单缓存。
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建 Calculator。
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute 依据给定K线计算常用技术指标。
func (c *Calculator) Compute(timeframe string, candles []exchange.Candle) (Summary, error) {
	if len(candles) < minCandles {
		return Summary{}, fmt.Errorf("计算指标失败: K线数量不足，至少需要 %d 根，当前 %d", minCandles, len(candles))
	}

	series := NewSeries(candles)
	cacheKey := fmt.Sprintf("%s:%d:%d", timeframe, series.Len(), series.Timestamps[series.Len()-1].Unix())

	c.mu.Lock()
	if entry, ok := c.cache[timeframe]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.summary, nil
	}
	c.mu.Unlock()

	summary := c.calculate(timeframe, series)

	c.mu.Lock()
	c.cache[timeframe] = cacheEntry{key: cacheKey, summary: summary}
	c.mu.Unlock()

	return summary, nil
}

func (c *Calculator) calculate(timeframe string, series Series) Summary {
	closePrices := series.Close
	highs := series.High
	lows := series.Low
	volumes := series.Volume

	rsi := talib.Rsi(closePrices, 14)
	macd, macdSignal, macdHist := talib.Macd(closePrices, 12, 26, 9)
	bbUpper, bbMiddle, bbLower := talib.BBands(closePrices, 20, 2, 2, talib.SMA)
	stochK, stochD := talib.Stoch(highs, lows, closePrices, 14, 3, talib.SMA, 3, talib.SMA)
	atr := talib.Atr(highs, lows, closePrices, 14)
	sma20 := talib.Sma(closePrices, 20)
	ema12 := talib.Ema(closePrices, 12)

	volumeAvg20 := average(SliceTail(volumes, 20))
	volumeCurrent := Last(volumes)

	upper := Clean(Last(bbUpper))
	middle := Clean(Last(bbMiddle))
	lower := Clean(Last(bbLower))

	return Summary{
		Timeframe: timeframe,
		RSI:       Clean(Last(rsi)),
		MACD: MACDResult{
			Value:     Clean(Last(macd)),
			Signal:    Clean(Last(macdSignal)),
			Histogram: Clean(Last(macdHist)),
		},
		Bollinger: BollingerResult{
			Upper:     upper,
			Middle:    middle,
			Lower:     lower,
			Bandwidth: Clean(SafeDivide(upper-lower, middle)),
		},
		Stochastic: StochasticResult{
			K: Clean(Last(stochK)),
			D: Clean(Last(stochD)),
		},
		ATR:   Clean(Last(atr)),
		SMA20: Clean(Last(sma20)),
		EMA12: Clean(Last(ema12)),
		Volume: VolumeResult{
			Current:   Clean(volumeCurrent),
			Average20: Clean(volumeAvg20),
			Ratio:     Clean(SafeDivide(volumeCurrent, volumeAvg20)),
		},
		Close:         Clean(Last(closePrices)),
		PreviousClose: Clean(Prev(closePrices)),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
