package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"cointrade/internal/config"
)

// FearGreed 为恐惧贪婪指数。
type FearGreed struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	FetchedAt      time.Time
}

// Headline 为一条新闻标题。
type Headline struct {
	Date  string `json:"date"`
	Title string `json:"title"`
}

// Client 通过 HTTP 拉取恐惧贪婪指数与新闻头条。
type Client struct {
	cfg    config.SentimentConfig
	http   *resty.Client
	logger *zap.Logger
}

// NewClient 创建情绪数据客户端。
func NewClient(cfg config.SentimentConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 5
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)

	return &Client{
		cfg:    cfg,
		http:   client,
		logger: logger,
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

// FetchFearGreed 拉取最新恐惧贪婪指数。
func (c *Client) FetchFearGreed(ctx context.Context) (FearGreed, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", "1").
		Get(c.cfg.FearGreedURL)
	if err != nil {
		return FearGreed{}, fmt.Errorf("拉取恐惧贪婪指数失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return FearGreed{}, fmt.Errorf("恐惧贪婪指数接口返回 %d", resp.StatusCode())
	}

	var parsed fearGreedResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return FearGreed{}, fmt.Errorf("解析恐惧贪婪指数失败: %w", err)
	}
	if len(parsed.Data) == 0 {
		return FearGreed{}, fmt.Errorf("恐惧贪婪指数返回为空")
	}

	value := 0
	if _, err := fmt.Sscanf(parsed.Data[0].Value, "%d", &value); err != nil {
		return FearGreed{}, fmt.Errorf("恐惧贪婪指数数值非法: %q", parsed.Data[0].Value)
	}

	return FearGreed{
		Value:          value,
		Classification: parsed.Data[0].ValueClassification,
		FetchedAt:      time.Now().UTC(),
	}, nil
}

type newsResponse struct {
	NewsResults []struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	} `json:"news_results"`
}

// FetchHeadlines 拉取最近新闻头条。未配置 API Key 时返回空列表而非报错，
// 新闻属于可选的提示词上下文。
func (c *Client) FetchHeadlines(ctx context.Context) ([]Headline, error) {
	if c.cfg.NewsAPIKey == "" {
		c.logger.Debug("未配置新闻 API Key，跳过新闻拉取")
		return []Headline{}, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"engine":  "google_news",
			"q":       c.cfg.NewsQuery,
			"api_key": c.cfg.NewsAPIKey,
		}).
		Get(c.cfg.NewsURL)
	if err != nil {
		return nil, fmt.Errorf("拉取新闻头条失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("新闻接口返回 %d", resp.StatusCode())
	}

	var parsed newsResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("解析新闻响应失败: %w", err)
	}

	limit := c.cfg.NewsLimit
	headlines := make([]Headline, 0, limit)
	for _, item := range parsed.NewsResults {
		if len(headlines) >= limit {
			break
		}
		headlines = append(headlines, Headline{
			Date:  item.Date,
			Title: item.Title,
		})
	}

	return headlines, nil
}
