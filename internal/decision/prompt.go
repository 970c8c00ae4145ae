package decision

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"cointrade/internal/snapshot"
)

// ReflectionNotes 为上一轮回顾的三段内容，作为提示词上下文传入。
type ReflectionNotes struct {
	StrategyAnalysis       string
	KeyPatterns            string
	ImprovementSuggestions string
}

// Input 汇总一次决策所需的全部上下文。
type Input struct {
	Snapshot       snapshot.Snapshot
	Preferences    []string
	Reflection     ReflectionNotes
	Trigger        string
	PriceChangePct float64
}

const systemPrompt = `You are a cryptocurrency trading advisor analyzing the given market.
Based on the provided market data, technical indicators, sentiment, and the
account's trading history reflection, decide the next action.

Respond with a single JSON object and nothing else:
{
  "decision": "buy" | "sell" | "hold",
  "percentage": <number between 0 and 100, portion of the available balance to use>,
  "reason": "<concise reasoning>",
  "risk_level": "low" | "medium" | "high",
  "confidence": <integer between 0 and 100>
}

Rules:
- "percentage" applies to the quote balance for buys and the base balance for sells.
- When holding, set "percentage" to 0.
- Be conservative when indicators conflict or liquidity is thin.`

const userPromptText = `## Trigger
{{ .TriggerLine }}

## Account
- Quote balance: {{ printf "%.2f" .Snapshot.Balance.QuoteFree }}
- Base balance: {{ printf "%.8f" .Snapshot.Balance.BaseFree }}
- Average entry price: {{ printf "%.2f" .Snapshot.AvgEntryPrice }}
- Current price: {{ printf "%.2f" .Snapshot.Price }}
{{- if .Snapshot.HasTraded }}
- Hours since last executed trade: {{ printf "%.1f" .Snapshot.HoursSinceLastTrade }}
{{- else }}
- No executed trades yet.
{{- end }}

## Investment preferences
{{- if .Preferences }}
{{- range .Preferences }}
- {{ . }}
{{- end }}
{{- else }}
- None specified.
{{- end }}

## Technical indicators (daily)
{{ .DailyJSON }}

## Technical indicators (hourly)
{{ .HourlyJSON }}

## Order book
- Best bid: {{ printf "%.2f" .BestBid }} / best ask: {{ printf "%.2f" .BestAsk }}
- Bid depth (top {{ .DepthLevels }}): {{ printf "%.6f" .BidDepth }}
- Ask depth (top {{ .DepthLevels }}): {{ printf "%.6f" .AskDepth }}

## Market sentiment
- Fear & Greed index: {{ .Snapshot.FearGreed.Value }} ({{ .Snapshot.FearGreed.Classification }})
{{- if .Snapshot.Headlines }}

## Recent headlines
{{- range .Snapshot.Headlines }}
- [{{ .Date }}] {{ .Title }}
{{- end }}
{{- end }}

## Reflection on recent trading
- Strategy analysis: {{ .Reflection.StrategyAnalysis }}
- Key patterns: {{ .Reflection.KeyPatterns }}
- Improvement suggestions: {{ .Reflection.ImprovementSuggestions }}`

var userPrompt = template.Must(template.New("decision").Parse(userPromptText))

const promptDepthLevels = 5

type promptData struct {
	Input

	TriggerLine string
	DailyJSON   string
	HourlyJSON  string
	BestBid     float64
	BestAsk     float64
	BidDepth    float64
	AskDepth    float64
	DepthLevels int
}

// renderUserPrompt 将决策上下文渲染为用户提示词。
func renderUserPrompt(input Input) (string, error) {
	daily, err := json.MarshalIndent(input.Snapshot.DailySummary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化日线指标失败: %w", err)
	}
	hourly, err := json.MarshalIndent(input.Snapshot.HourlySummary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化小时线指标失败: %w", err)
	}

	triggerLine := fmt.Sprintf("This cycle was triggered by: %s.", input.Trigger)
	if input.PriceChangePct != 0 {
		triggerLine = fmt.Sprintf("%s Price moved %.2f%% since the last observation.", triggerLine, input.PriceChangePct*100)
	}

	data := promptData{
		Input:       input,
		TriggerLine: triggerLine,
		DailyJSON:   string(daily),
		HourlyJSON:  string(hourly),
		DepthLevels: promptDepthLevels,
		BidDepth:    input.Snapshot.OrderBook.BidTotal(promptDepthLevels),
		AskDepth:    input.Snapshot.OrderBook.AskTotal(promptDepthLevels),
	}
	if len(input.Snapshot.OrderBook.Bids) > 0 {
		data.BestBid = input.Snapshot.OrderBook.Bids[0].Price
	}
	if len(input.Snapshot.OrderBook.Asks) > 0 {
		data.BestAsk = input.Snapshot.OrderBook.Asks[0].Price
	}

	var sb strings.Builder
	if err := userPrompt.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return sb.String(), nil
}
