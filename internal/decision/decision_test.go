package decision

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"cointrade/internal/config"
	"cointrade/internal/exchange"
	"cointrade/internal/indicator"
	"cointrade/internal/sentiment"
	"cointrade/internal/snapshot"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Decision
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"decision":"buy","percentage":30,"reason":"oversold","risk_level":"medium","confidence":70}`,
			want: Decision{Action: "buy", Percentage: 30, Reason: "oversold", RiskLevel: "medium", Confidence: 70},
		},
		{
			name: "json wrapped in markdown fence",
			raw:  "```json\n{\"decision\":\"sell\",\"percentage\":50,\"reason\":\"overbought\",\"risk_level\":\"high\",\"confidence\":60}\n```",
			want: Decision{Action: "sell", Percentage: 50, Reason: "overbought", RiskLevel: "high", Confidence: 60},
		},
		{
			name: "hold forces percentage to zero",
			raw:  `{"decision":"HOLD","percentage":40,"reason":"wait","risk_level":"low","confidence":55}`,
			want: Decision{Action: "hold", Percentage: 0, Reason: "wait", RiskLevel: "low", Confidence: 55},
		},
		{
			name:    "unknown action",
			raw:     `{"decision":"short","percentage":10,"reason":"x","risk_level":"low","confidence":1}`,
			wantErr: true,
		},
		{
			name:    "percentage out of range",
			raw:     `{"decision":"buy","percentage":150,"reason":"x","risk_level":"low","confidence":1}`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			raw:     "I cannot decide right now.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFallback(t *testing.T) {
	d := Fallback("model unavailable")
	if d.Action != ActionHold || d.Percentage != 0 || d.RiskLevel != RiskHigh || d.Confidence != 0 {
		t.Errorf("unexpected fallback decision: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Errorf("fallback must validate: %v", err)
	}
}

func sampleInput() Input {
	return Input{
		Snapshot: snapshot.Snapshot{
			Symbol:        "BTC/KRW",
			CollectedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Price:         50000000,
			Balance:       exchange.Balance{QuoteFree: 100000, BaseFree: 0.001},
			AvgEntryPrice: 48000000,
			DailySummary:  indicator.Summary{Timeframe: "1d", RSI: 45},
			HourlySummary: indicator.Summary{Timeframe: "1h", RSI: 52},
			OrderBook: exchange.OrderBookSnapshot{
				Bids: []exchange.OrderBookLevel{{Price: 49990000, Amount: 2}},
				Asks: []exchange.OrderBookLevel{{Price: 50010000, Amount: 1}},
			},
			FearGreed: sentiment.FearGreed{Value: 60, Classification: "Greed"},
			Headlines: []sentiment.Headline{{Date: "today", Title: "markets rally"}},
			HasTraded: true,

			HoursSinceLastTrade: 4,
		},
		Preferences: []string{"prefer small positions"},
		Reflection: ReflectionNotes{
			StrategyAnalysis:       "recent buys were profitable",
			KeyPatterns:            "buys after RSI dips",
			ImprovementSuggestions: "avoid chasing spikes",
		},
		Trigger:        "volatility",
		PriceChangePct: 0.015,
	}
}

func TestRenderUserPrompt(t *testing.T) {
	prompt, err := renderUserPrompt(sampleInput())
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, fragment := range []string{
		"volatility",
		"1.50%",
		"prefer small positions",
		"Fear & Greed index: 60 (Greed)",
		"markets rally",
		"recent buys were profitable",
		"Hours since last executed trade: 4.0",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("prompt missing %q", fragment)
		}
	}
}

type mockChat struct {
	content string
	err     error
	calls   int
}

func (m *mockChat) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.calls++
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func newTestProvider(chat *mockChat) *Provider {
	return &Provider{
		cfg:    config.OpenAIConfig{Model: "gpt-4o", Timeout: time.Second},
		client: chat,
	}
}

func TestDecide(t *testing.T) {
	chat := &mockChat{content: `{"decision":"buy","percentage":25,"reason":"dip","risk_level":"medium","confidence":65}`}
	provider := newTestProvider(chat)

	d, err := provider.Decide(context.Background(), sampleInput())
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Action != ActionBuy || d.Percentage != 25 {
		t.Errorf("unexpected decision: %+v", d)
	}
	if chat.calls != 1 {
		t.Errorf("expected 1 call, got %d", chat.calls)
	}
}

func TestDecide_ModelErrorPropagates(t *testing.T) {
	provider := newTestProvider(&mockChat{err: errors.New("rate limited")})

	if _, err := provider.Decide(context.Background(), sampleInput()); err == nil {
		t.Fatal("expected error when model call fails")
	}
}

func TestDecide_InvalidOutputPropagates(t *testing.T) {
	provider := newTestProvider(&mockChat{content: "not json"})

	if _, err := provider.Decide(context.Background(), sampleInput()); err == nil {
		t.Fatal("expected error for invalid model output")
	}
}
