package exchange

import (
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func TestSplitSymbol(t *testing.T) {
	base, quote, err := splitSymbol("BTC/KRW")
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if base != "BTC" || quote != "KRW" {
		t.Errorf("got %s/%s", base, quote)
	}

	if _, _, err := splitSymbol("btc-krw"); err == nil {
		t.Error("expected error for malformed symbol")
	}
	if _, _, err := splitSymbol("/KRW"); err == nil {
		t.Error("expected error for empty base")
	}
}

func TestAsFloat(t *testing.T) {
	value := 1.5
	tests := []struct {
		in   interface{}
		want float64
	}{
		{1.5, 1.5},
		{float32(2), 2},
		{&value, 1.5},
		{(*float64)(nil), 0},
		{int(3), 3},
		{int64(4), 4},
		{"not a number", 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := asFloat(tt.in); got != tt.want {
			t.Errorf("asFloat(%v) = %f, want %f", tt.in, got, tt.want)
		}
	}
}

func TestConvertOrderBook(t *testing.T) {
	ts := int64(1717200000000)
	raw := ccxt.OrderBook{
		Bids:      [][]float64{{49990000, 1.5}, {49980000, 2}, {49970000}},
		Asks:      [][]float64{{50010000, 1}},
		Timestamp: &ts,
	}

	ob := convertOrderBook("BTC/KRW", raw)
	if len(ob.Bids) != 2 {
		t.Errorf("incomplete levels must be dropped, got %d bids", len(ob.Bids))
	}
	if ob.Bids[0].Price != 49990000 || ob.Bids[0].Amount != 1.5 {
		t.Errorf("bid[0] = %+v", ob.Bids[0])
	}
	if !ob.Timestamp.Equal(time.UnixMilli(ts).UTC()) {
		t.Errorf("timestamp = %v", ob.Timestamp)
	}
}

func TestOrderBookHelpers(t *testing.T) {
	ob := OrderBookSnapshot{
		Bids: []OrderBookLevel{{Price: 100, Amount: 1}, {Price: 99, Amount: 2}, {Price: 98, Amount: 3}},
		Asks: []OrderBookLevel{{Price: 101, Amount: 4}},
	}

	if got := ob.BidTotal(2); got != 3 {
		t.Errorf("BidTotal(2) = %f", got)
	}
	if got := ob.BidTotal(0); got != 6 {
		t.Errorf("BidTotal(0) = %f, want all levels", got)
	}
	if got := ob.AskTotal(10); got != 4 {
		t.Errorf("AskTotal(10) = %f", got)
	}
	if got := ob.Spread(); got != 1 {
		t.Errorf("Spread = %f", got)
	}
	if got := (OrderBookSnapshot{}).Spread(); got != 0 {
		t.Errorf("empty Spread = %f", got)
	}
}
