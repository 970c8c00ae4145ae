package decision

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"cointrade/internal/config"
)

// chatClient 抽象出大模型补全接口，便于测试替换。
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Provider 调用大模型产出交易决策。
type Provider struct {
	cfg    config.OpenAIConfig
	client chatClient
	logger *zap.Logger
}

// NewProvider 创建决策提供者。
func NewProvider(cfg config.OpenAIConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Provider{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}
}

// Decide 依据快照与上下文请求模型决策。模型不可用或输出非法时返回错误，
// 由上层降级为持有。
func (p *Provider) Decide(ctx context.Context, input Input) (Decision, error) {
	prompt, err := renderUserPrompt(input)
	if err != nil {
		return Decision{}, err
	}

	timeout := p.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("调用模型失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, fmt.Errorf("模型未返回候选结果")
	}

	d, err := parseDecision(resp.Choices[0].Message.Content)
	if err != nil {
		return Decision{}, err
	}

	p.logger.Info("模型决策完成",
		zap.String("action", d.Action),
		zap.Float64("percentage", d.Percentage),
		zap.String("risk_level", d.RiskLevel),
		zap.Int("confidence", d.Confidence),
		zap.Duration("latency", time.Since(start)),
	)
	return d, nil
}
