package history

import (
	"context"
	"testing"
	"time"

	"cointrade/internal/config"
	"cointrade/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	base, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })

	hs, err := NewStore(base, nil)
	if err != nil {
		t.Fatalf("init history store: %v", err)
	}
	return hs
}

func sampleRecord(accountID string, ts time.Time) Record {
	return Record{
		AccountID:    accountID,
		Timestamp:    ts,
		Trigger:      "scheduled",
		Action:       "hold",
		Reason:       "no signal",
		RiskLevel:    "low",
		QuoteBalance: 100000,
		Price:        50000000,
	}
}

func TestAppendAndRecentRecords(t *testing.T) {
	hs := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := sampleRecord("acct-1", base.Add(time.Duration(i)*time.Hour))
		rec.Reason = time.Duration(i).String()
		if _, err := hs.Append(ctx, rec); err != nil {
			t.Fatalf("append record %d: %v", i, err)
		}
	}
	// 其他账户的记录不应串入。
	if _, err := hs.Append(ctx, sampleRecord("acct-2", base)); err != nil {
		t.Fatalf("append other account: %v", err)
	}

	records, err := hs.RecentRecords(ctx, "acct-1", 3)
	if err != nil {
		t.Fatalf("recent records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Errorf("records not ordered newest first: %v after %v", records[i].Timestamp, records[i-1].Timestamp)
		}
	}
	for _, rec := range records {
		if rec.AccountID != "acct-1" {
			t.Errorf("unexpected account in result: %s", rec.AccountID)
		}
	}
}

func TestLatestReflection(t *testing.T) {
	hs := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := hs.LatestReflection(ctx, "acct-1"); err != nil || ok {
		t.Fatalf("expected no reflection for empty history, ok=%v err=%v", ok, err)
	}

	rec := sampleRecord("acct-1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	rec.StrategyAnalysis = "analysis-1"
	rec.KeyPatterns = "patterns-1"
	rec.ImprovementSuggestions = "suggestions-1"
	if _, err := hs.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec2 := sampleRecord("acct-1", time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC))
	rec2.StrategyAnalysis = "analysis-2"
	if _, err := hs.Append(ctx, rec2); err != nil {
		t.Fatalf("append: %v", err)
	}

	rf, ok, err := hs.LatestReflection(ctx, "acct-1")
	if err != nil {
		t.Fatalf("latest reflection: %v", err)
	}
	if !ok {
		t.Fatal("expected reflection to exist")
	}
	if rf.StrategyAnalysis != "analysis-2" {
		t.Errorf("expected latest reflection, got %q", rf.StrategyAnalysis)
	}
}

func TestAvgBuyPrice(t *testing.T) {
	hs := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	appendRec := func(ts time.Time, action string, succeeded bool, amount, price, baseBal float64) {
		t.Helper()
		rec := sampleRecord("acct-1", ts)
		rec.Action = action
		rec.ExecAttempted = true
		rec.ExecSucceeded = succeeded
		rec.ExecAmount = amount
		rec.Price = price
		rec.BaseBalance = baseBal
		if _, err := hs.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// 上一轮仓位：应被空仓记录截断，不参与成本计算。
	appendRec(base, "buy", true, 100000, 40000000, 0.0025)
	appendRec(base.Add(1*time.Hour), "sell", true, 0.0025, 45000000, 0)

	// 本轮仓位：两笔成交买入与一笔失败买入。
	appendRec(base.Add(2*time.Hour), "buy", true, 50000, 50000000, 0.001)
	appendRec(base.Add(3*time.Hour), "buy", false, 50000, 55000000, 0.001)
	appendRec(base.Add(4*time.Hour), "buy", true, 60000, 60000000, 0.002)

	got, err := hs.AvgBuyPrice(ctx, "acct-1", 1e-8)
	if err != nil {
		t.Fatalf("avg buy price: %v", err)
	}

	// (50000 + 60000) / (50000/50000000 + 60000/60000000)
	want := 110000.0 / (50000.0/50000000.0 + 60000.0/60000000.0)
	if diff := got - want; diff > 1 || diff < -1 {
		t.Errorf("avg buy price = %f, want %f", got, want)
	}
}

func TestAvgBuyPriceNoHistory(t *testing.T) {
	hs := newTestStore(t)

	got, err := hs.AvgBuyPrice(context.Background(), "acct-1", 1e-8)
	if err != nil {
		t.Fatalf("avg buy price: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 for empty history, got %f", got)
	}
}

func TestHoursSinceLastTrade(t *testing.T) {
	hs := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, ok, err := hs.HoursSinceLastTrade(ctx, "acct-1", base); err != nil || ok {
		t.Fatalf("expected no trade for empty history, ok=%v err=%v", ok, err)
	}

	rec := sampleRecord("acct-1", base)
	rec.Action = "buy"
	rec.ExecAttempted = true
	rec.ExecSucceeded = true
	rec.ExecAmount = 50000
	if _, err := hs.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	// 未成交的记录不应影响计时。
	if _, err := hs.Append(ctx, sampleRecord("acct-1", base.Add(2*time.Hour))); err != nil {
		t.Fatalf("append: %v", err)
	}

	hours, ok, err := hs.HoursSinceLastTrade(ctx, "acct-1", base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("hours since last trade: %v", err)
	}
	if !ok {
		t.Fatal("expected a trade to exist")
	}
	if hours < 2.99 || hours > 3.01 {
		t.Errorf("hours = %f, want 3", hours)
	}
}
