package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"cointrade/internal/config"
	"cointrade/internal/history"
)

const criticSystemPrompt = `You review a crypto trading account's recent cycle history
and a draft reflection produced by deterministic statistics. Improve the wording and
surface any pattern the draft missed, but stay grounded in the listed records.

Respond with a single JSON object and nothing else:
{
  "strategy_analysis": "...",
  "key_patterns": "...",
  "improvement_suggestions": "..."
}`

// chatClient 与 decision 包保持一致的模型接口抽象。
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelCritic 用大模型润色确定性回顾。
type ModelCritic struct {
	cfg    config.OpenAIConfig
	client chatClient
}

// NewModelCritic 创建模型润色器。
func NewModelCritic(cfg config.OpenAIConfig) *ModelCritic {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &ModelCritic{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

var _ Critic = (*ModelCritic)(nil)

type criticResponse struct {
	StrategyAnalysis       string `json:"strategy_analysis"`
	KeyPatterns            string `json:"key_patterns"`
	ImprovementSuggestions string `json:"improvement_suggestions"`
}

// Critique 将记录与草稿提交给模型，返回润色后的回顾。
func (c *ModelCritic) Critique(ctx context.Context, records []history.Record, draft Reflection) (Reflection, error) {
	var sb strings.Builder
	sb.WriteString("## Recent cycle records (newest first)\n")
	for _, rec := range records {
		fmt.Fprintf(&sb, "- %s trigger=%s action=%s pct=%.1f executed=%v price=%.2f reason=%q\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Trigger, rec.Action, rec.Percentage, rec.ExecSucceeded, rec.Price, rec.Reason,
		)
	}
	sb.WriteString("\n## Draft reflection\n")
	fmt.Fprintf(&sb, "- Strategy analysis: %s\n", draft.StrategyAnalysis)
	fmt.Fprintf(&sb, "- Key patterns: %s\n", draft.KeyPatterns)
	fmt.Fprintf(&sb, "- Improvement suggestions: %s\n", draft.ImprovementSuggestions)

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: criticSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Reflection{}, fmt.Errorf("调用模型失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reflection{}, fmt.Errorf("模型未返回候选结果")
	}

	raw := resp.Choices[0].Message.Content
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Reflection{}, fmt.Errorf("模型输出不含 JSON 对象")
	}

	var parsed criticResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Reflection{}, fmt.Errorf("解析回顾 JSON 失败: %w", err)
	}

	return Reflection{
		StrategyAnalysis:       parsed.StrategyAnalysis,
		KeyPatterns:            parsed.KeyPatterns,
		ImprovementSuggestions: parsed.ImprovementSuggestions,
	}, nil
}
