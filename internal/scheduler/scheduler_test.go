package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cointrade/internal/config"
	"cointrade/internal/cycle"
	"cointrade/internal/history"
)

type activityStub struct {
	mu       sync.Mutex
	inactive map[string]bool
}

func (a *activityStub) IsActive(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.inactive[id]
}

func (a *activityStub) setInactive(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inactive == nil {
		a.inactive = make(map[string]bool)
	}
	a.inactive[id] = true
}

// blockingRunner 在 release 收到信号前阻塞，用于模拟运行中的周期。
type blockingRunner struct {
	started chan string
	release chan struct{}
	calls   int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, trig cycle.TriggerContext) (history.Record, error) {
	r.started <- trig.Kind
	select {
	case <-ctx.Done():
		return history.Record{}, ctx.Err()
	case <-r.release:
	}
	atomic.AddInt32(&r.calls, 1)
	return history.Record{}, nil
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		DefaultInterval:     time.Hour,
		PricePollInterval:   time.Hour,
		VolatilityThreshold: 0.01,
	}
}

func startScheduler(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
	return cancel
}

func waitStarted(t *testing.T, r *blockingRunner) string {
	t.Helper()
	select {
	case kind := <-r.started:
		return kind
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start in time")
		return ""
	}
}

func assertNotStarted(t *testing.T, r *blockingRunner) {
	t.Helper()
	select {
	case kind := <-r.started:
		t.Fatalf("unexpected cycle start: %s", kind)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTriggersCoalesceWhileRunning(t *testing.T) {
	runner := newBlockingRunner()
	s := New(testSchedulerConfig(), &activityStub{}, nil, nil, nil)
	if err := s.AddAccount("acct-1", time.Hour, runner); err != nil {
		t.Fatalf("add account: %v", err)
	}
	startScheduler(t, s)

	if !s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerManual}) {
		t.Fatal("first trigger rejected")
	}
	waitStarted(t, runner)

	// 运行中：第一次触发进入待执行位，第二次被合并丢弃。
	if !s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerScheduled}) {
		t.Fatal("pending trigger rejected")
	}
	if s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerScheduled}) {
		t.Fatal("expected trigger to coalesce while one is pending")
	}

	runner.release <- struct{}{}
	waitStarted(t, runner)
	runner.release <- struct{}{}

	// 两次触发合并为一轮：总共恰好两轮。
	assertNotStarted(t, runner)
	if got := atomic.LoadInt32(&runner.calls); got != 2 {
		t.Errorf("completed cycles = %d, want 2", got)
	}
}

func TestInactiveAccountNeverRuns(t *testing.T) {
	runner := newBlockingRunner()
	activity := &activityStub{}
	activity.setInactive("acct-1")

	s := New(testSchedulerConfig(), activity, nil, nil, nil)
	if err := s.AddAccount("acct-1", time.Hour, runner); err != nil {
		t.Fatalf("add account: %v", err)
	}
	startScheduler(t, s)

	s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerManual})
	assertNotStarted(t, runner)
	if got := atomic.LoadInt32(&runner.calls); got != 0 {
		t.Errorf("inactive account ran %d cycles", got)
	}
}

func TestVolatilityCooldownSuppressesScheduled(t *testing.T) {
	runner := newBlockingRunner()
	cfg := testSchedulerConfig()
	cfg.VolatilityCooldown = time.Hour

	s := New(cfg, &activityStub{}, nil, nil, nil)
	if err := s.AddAccount("acct-1", time.Hour, runner); err != nil {
		t.Fatalf("add account: %v", err)
	}
	startScheduler(t, s)

	s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerVolatility, PriceChangePct: 0.02})
	if kind := waitStarted(t, runner); kind != cycle.TriggerVolatility {
		t.Fatalf("unexpected trigger kind: %s", kind)
	}
	runner.release <- struct{}{}

	// 冷却期内的定时触发被跳过。
	s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerScheduled})
	assertNotStarted(t, runner)

	// 手动触发不受冷却限制。
	s.TriggerAccount("acct-1", cycle.TriggerContext{Kind: cycle.TriggerManual})
	if kind := waitStarted(t, runner); kind != cycle.TriggerManual {
		t.Fatalf("unexpected trigger kind: %s", kind)
	}
	runner.release <- struct{}{}
}

type priceScript struct {
	mu     sync.Mutex
	prices []float64
	idx    int
}

func (p *priceScript) FetchLastPrice(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idx < len(p.prices)-1 {
		p.idx++
	}
	return p.prices[p.idx], nil
}

func TestPriceWatcherTriggersVolatilityCycle(t *testing.T) {
	runner := newBlockingRunner()
	cfg := testSchedulerConfig()
	cfg.PricePollInterval = 10 * time.Millisecond
	cfg.VolatilityThreshold = 0.01

	prices := &priceScript{prices: []float64{0, 50000000, 50000000, 51000000}}
	s := New(cfg, &activityStub{}, prices, nil, nil)
	if err := s.AddAccount("acct-1", time.Hour, runner); err != nil {
		t.Fatalf("add account: %v", err)
	}
	startScheduler(t, s)

	if kind := waitStarted(t, runner); kind != cycle.TriggerVolatility {
		t.Fatalf("unexpected trigger kind: %s", kind)
	}
	runner.release <- struct{}{}
}

func TestNextMaintenance(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	next := nextMaintenance(now, 0)
	want := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	next = nextMaintenance(now, 12)
	want = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}
