package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"cointrade/internal/exchange"
)

// Renderer 将K线窗口渲染为可回溯的图表产物文件。
type Renderer struct {
	dir    string
	logger *zap.Logger
}

// NewRenderer 创建图表渲染器并确保产物目录存在。
func NewRenderer(dir string, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		return nil, fmt.Errorf("chart: 产物目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chart: 创建产物目录失败: %w", err)
	}
	return &Renderer{dir: dir, logger: logger}, nil
}

// Render 渲染小时K线图并写入产物目录，返回产物路径。
func (r *Renderer) Render(symbol string, candles []exchange.Candle, at time.Time) (string, error) {
	if len(candles) == 0 {
		return "", fmt.Errorf("chart: 输入K线为空")
	}

	xAxis := make([]string, 0, len(candles))
	klineData := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		xAxis = append(xAxis, c.Timestamp.Format("01-02 15:04"))
		klineData = append(klineData, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    symbol,
			Subtitle: at.UTC().Format(time.RFC3339),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{SplitLine: &opts.SplitLine{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries(symbol, klineData)

	name := fmt.Sprintf("chart_%s.html", at.UTC().Format("20060102_150405"))
	path := filepath.Join(r.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("chart: 创建产物文件失败: %w", err)
	}
	defer file.Close()

	if err := kline.Render(file); err != nil {
		return "", fmt.Errorf("chart: 渲染图表失败: %w", err)
	}

	r.logger.Debug("图表产物已生成", zap.String("path", path))
	return path, nil
}

// Dir 返回产物目录。
func (r *Renderer) Dir() string {
	return r.dir
}
