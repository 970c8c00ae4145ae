package execution

import (
	"context"
	"errors"
	"testing"

	"cointrade/internal/config"
	"cointrade/internal/decision"
	"cointrade/internal/exchange"
	"cointrade/internal/snapshot"
)

type mockOrderClient struct {
	buyCost    float64
	sellAmount float64
	buyCalls   int
	sellCalls  int
	err        error
}

func (m *mockOrderClient) CreateMarketBuy(_ context.Context, cost float64) error {
	m.buyCalls++
	m.buyCost = cost
	return m.err
}

func (m *mockOrderClient) CreateMarketSell(_ context.Context, amount float64) error {
	m.sellCalls++
	m.sellAmount = amount
	return m.err
}

func testConfig() config.TradingConfig {
	return config.TradingConfig{
		MinOrderNotional: 5000,
		FeeRate:          0.0005,
	}
}

func snapWith(quote, base, price float64) snapshot.Snapshot {
	return snapshot.Snapshot{
		Symbol:  "BTC/KRW",
		Price:   price,
		Balance: exchange.Balance{QuoteFree: quote, BaseFree: base},
	}
}

func TestExecute_BuySizing(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewLiveExecutor(testConfig(), client, nil)

	d := decision.Decision{Action: decision.ActionBuy, Percentage: 50, RiskLevel: decision.RiskMedium}
	result := exec.Execute(context.Background(), d, snapWith(100000, 0, 50000000))

	if !result.Attempted || !result.Succeeded {
		t.Fatalf("expected successful attempt, got %+v", result)
	}
	// 100000 * 0.5 * (1 - 0.0005) = 49975
	if client.buyCost != 49975 {
		t.Errorf("buy cost = %f, want 49975", client.buyCost)
	}
	if result.Amount != 49975 {
		t.Errorf("result amount = %f, want 49975", result.Amount)
	}
	if client.buyCalls != 1 {
		t.Errorf("buy calls = %d, want 1", client.buyCalls)
	}
}

func TestExecute_BuyBelowMinNotionalDeclined(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewLiveExecutor(testConfig(), client, nil)

	// 1000 * 0.5 * 0.9995 = 499.75 < 5000
	d := decision.Decision{Action: decision.ActionBuy, Percentage: 50, RiskLevel: decision.RiskLow}
	result := exec.Execute(context.Background(), d, snapWith(1000, 0, 50000000))

	if result.Attempted || result.Succeeded {
		t.Fatalf("expected declined execution, got %+v", result)
	}
	if client.buyCalls != 0 || client.sellCalls != 0 {
		t.Errorf("declined execution must not reach the exchange: buy=%d sell=%d", client.buyCalls, client.sellCalls)
	}
	if result.Reason == "" {
		t.Error("declined execution must carry a reason")
	}
}

func TestExecute_SellSizing(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewLiveExecutor(testConfig(), client, nil)

	d := decision.Decision{Action: decision.ActionSell, Percentage: 50, RiskLevel: decision.RiskMedium}
	result := exec.Execute(context.Background(), d, snapWith(0, 0.002, 50000000))

	if !result.Attempted || !result.Succeeded {
		t.Fatalf("expected successful attempt, got %+v", result)
	}
	if client.sellAmount != 0.001 {
		t.Errorf("sell amount = %f, want 0.001", client.sellAmount)
	}
}

func TestExecute_SellBelowMinNotionalDeclined(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewLiveExecutor(testConfig(), client, nil)

	// 0.0000001 * 50000000 = 5 < 5000
	d := decision.Decision{Action: decision.ActionSell, Percentage: 100, RiskLevel: decision.RiskLow}
	result := exec.Execute(context.Background(), d, snapWith(0, 0.0000001, 50000000))

	if result.Attempted {
		t.Fatalf("expected declined execution, got %+v", result)
	}
	if client.sellCalls != 0 {
		t.Errorf("declined execution must not reach the exchange: %d calls", client.sellCalls)
	}
}

func TestExecute_HoldNeverReachesExchange(t *testing.T) {
	client := &mockOrderClient{}
	exec := NewLiveExecutor(testConfig(), client, nil)

	d := decision.Decision{Action: decision.ActionHold, RiskLevel: decision.RiskLow}
	result := exec.Execute(context.Background(), d, snapWith(100000, 0.001, 50000000))

	if result.Attempted {
		t.Fatalf("hold must not attempt execution: %+v", result)
	}
	if client.buyCalls != 0 || client.sellCalls != 0 {
		t.Error("hold must not reach the exchange")
	}
}

func TestExecute_ExchangeErrorBecomesFailedResult(t *testing.T) {
	client := &mockOrderClient{err: errors.New("insufficient funds")}
	exec := NewLiveExecutor(testConfig(), client, nil)

	d := decision.Decision{Action: decision.ActionBuy, Percentage: 50, RiskLevel: decision.RiskMedium}
	result := exec.Execute(context.Background(), d, snapWith(100000, 0, 50000000))

	if !result.Attempted {
		t.Fatal("exchange error still counts as an attempt")
	}
	if result.Succeeded {
		t.Fatal("expected failed result")
	}
	if result.Reason == "" {
		t.Error("failed execution must carry a reason")
	}
	if client.buyCalls != 1 {
		t.Errorf("buy calls = %d, want 1 (no retry on orders)", client.buyCalls)
	}
}

func TestSimulatedExecutor(t *testing.T) {
	exec := NewSimulatedExecutor(testConfig(), nil)

	d := decision.Decision{Action: decision.ActionBuy, Percentage: 50, RiskLevel: decision.RiskMedium}
	result := exec.Execute(context.Background(), d, snapWith(100000, 0, 50000000))

	if !result.Attempted || !result.Succeeded {
		t.Fatalf("expected simulated fill, got %+v", result)
	}
	if result.Amount != 49975 {
		t.Errorf("simulated amount = %f, want 49975", result.Amount)
	}

	declined := exec.Execute(context.Background(),
		decision.Decision{Action: decision.ActionBuy, Percentage: 100, RiskLevel: decision.RiskLow},
		snapWith(1000, 0, 50000000))
	if declined.Attempted {
		t.Errorf("simulation applies the same guards: %+v", declined)
	}
}
