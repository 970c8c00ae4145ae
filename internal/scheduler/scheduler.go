package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cointrade/internal/config"
	"cointrade/internal/cycle"
	"cointrade/internal/history"
)

// CycleRunner 执行一轮账户周期。
type CycleRunner interface {
	Run(ctx context.Context, trig cycle.TriggerContext) (history.Record, error)
}

// PriceSource 提供共享的最新价，用于波动监控。
type PriceSource interface {
	FetchLastPrice(ctx context.Context) (float64, error)
}

// ActivityChecker 判断账户是否启用。
type ActivityChecker interface {
	IsActive(id string) bool
}

// Maintenance 为每日维护任务，目前为产物清理。
type Maintenance interface {
	Sweep() (int, error)
}

// worker 为单账户的调度单元。due 通道容量为1：周期运行期间到达的
// 多次触发合并为一次待执行周期。
type worker struct {
	accountID string
	interval  time.Duration
	runner    CycleRunner
	due       chan cycle.TriggerContext

	// lastVolatilityAt 仅由该账户的执行协程读写。
	lastVolatilityAt time.Time
}

// trigger 非阻塞投递触发。已有待执行周期时丢弃并返回 false。
func (w *worker) trigger(trig cycle.TriggerContext) bool {
	select {
	case w.due <- trig:
		return true
	default:
		return false
	}
}

// Scheduler 驱动全部账户的周期执行、共享波动监控与每日维护。
type Scheduler struct {
	cfg      config.SchedulerConfig
	activity ActivityChecker
	prices   PriceSource
	sweeper  Maintenance
	logger   *zap.Logger
	nowFn    func() time.Time

	order   []string
	workers map[string]*worker
}

// New 创建调度器。prices 与 sweeper 可为 nil，对应功能关闭。
func New(
	cfg config.SchedulerConfig,
	activity ActivityChecker,
	prices PriceSource,
	sweeper Maintenance,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		activity: activity,
		prices:   prices,
		sweeper:  sweeper,
		logger:   logger,
		nowFn:    time.Now,
		workers:  make(map[string]*worker),
	}
}

// AddAccount 注册一个账户的周期执行器。必须在 Run 之前调用。
func (s *Scheduler) AddAccount(accountID string, interval time.Duration, runner CycleRunner) error {
	if _, ok := s.workers[accountID]; ok {
		return fmt.Errorf("scheduler: 账户重复注册: %s", accountID)
	}
	if interval <= 0 {
		interval = s.cfg.DefaultInterval
	}
	s.order = append(s.order, accountID)
	s.workers[accountID] = &worker{
		accountID: accountID,
		interval:  interval,
		runner:    runner,
		due:       make(chan cycle.TriggerContext, 1),
	}
	return nil
}

// TriggerAccount 向指定账户投递一次触发。返回是否被接受。
func (s *Scheduler) TriggerAccount(accountID string, trig cycle.TriggerContext) bool {
	w, ok := s.workers[accountID]
	if !ok {
		return false
	}
	return w.trigger(trig)
}

// TriggerAll 向全部启用账户投递触发。
func (s *Scheduler) TriggerAll(trig cycle.TriggerContext) {
	for _, id := range s.order {
		if !s.activity.IsActive(id) {
			continue
		}
		if !s.workers[id].trigger(trig) {
			s.logger.Debug("触发合并：账户已有待执行周期",
				zap.String("account_id", id),
				zap.String("trigger", trig.Kind),
			)
		}
	}
}

// Run 启动全部调度协程并阻塞到 ctx 取消。
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.workers) == 0 {
		return fmt.Errorf("scheduler: 未注册任何账户")
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, id := range s.order {
		w := s.workers[id]
		g.Go(func() error {
			s.tickLoop(gctx, w)
			return nil
		})
		g.Go(func() error {
			s.runLoop(gctx, w)
			return nil
		})
	}

	if s.prices != nil {
		g.Go(func() error {
			s.watchPrice(gctx)
			return nil
		})
	}

	if s.sweeper != nil {
		g.Go(func() error {
			s.maintenanceLoop(gctx)
			return nil
		})
	}

	if s.cfg.RunImmediately {
		s.TriggerAll(cycle.TriggerContext{Kind: cycle.TriggerManual})
	}

	s.logger.Info("调度器已启动",
		zap.Int("accounts", len(s.workers)),
		zap.Bool("price_watch", s.prices != nil),
	)

	<-gctx.Done()
	err := g.Wait()
	s.logger.Info("调度器已停止")
	return err
}

// tickLoop 按账户间隔投递定时触发。
func (s *Scheduler) tickLoop(ctx context.Context, w *worker) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.trigger(cycle.TriggerContext{Kind: cycle.TriggerScheduled}) {
				s.logger.Debug("定时触发合并", zap.String("account_id", w.accountID))
			}
		}
	}
}

// runLoop 消费触发并串行执行周期。同一账户绝不并发运行两轮。
func (s *Scheduler) runLoop(ctx context.Context, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case trig := <-w.due:
			if !s.activity.IsActive(w.accountID) {
				s.logger.Debug("账户未启用，忽略触发",
					zap.String("account_id", w.accountID),
					zap.String("trigger", trig.Kind),
				)
				continue
			}

			// 波动触发后的冷却期内，跳过紧随其后的定时触发，避免重复决策。
			if trig.Kind == cycle.TriggerScheduled && s.cfg.VolatilityCooldown > 0 &&
				!w.lastVolatilityAt.IsZero() &&
				s.nowFn().Sub(w.lastVolatilityAt) < s.cfg.VolatilityCooldown {
				s.logger.Info("波动冷却期内，跳过定时触发",
					zap.String("account_id", w.accountID),
				)
				continue
			}

			_, err := w.runner.Run(ctx, trig)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, cycle.ErrDataUnavailable):
				s.logger.Warn("周期因数据不可用跳过",
					zap.String("account_id", w.accountID),
					zap.Error(err),
				)
			default:
				s.logger.Error("周期执行异常",
					zap.String("account_id", w.accountID),
					zap.Error(err),
				)
			}

			if trig.Kind == cycle.TriggerVolatility {
				w.lastVolatilityAt = s.nowFn()
			}
		}
	}
}

// watchPrice 轮询最新价，相邻两次观测的相对变化超阈值时触发全部账户。
func (s *Scheduler) watchPrice(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PricePollInterval)
	defer ticker.Stop()

	var baseline float64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, err := s.prices.FetchLastPrice(ctx)
			if err != nil {
				s.logger.Warn("波动监控拉取价格失败", zap.Error(err))
				continue
			}

			if baseline > 0 {
				change := (price - baseline) / baseline
				if math.Abs(change) >= s.cfg.VolatilityThreshold {
					s.logger.Info("检测到价格剧烈波动",
						zap.Float64("baseline", baseline),
						zap.Float64("price", price),
						zap.Float64("change_pct", change*100),
					)
					s.TriggerAll(cycle.TriggerContext{
						Kind:           cycle.TriggerVolatility,
						PriceChangePct: change,
					})
				}
			}
			baseline = price
		}
	}
}

// maintenanceLoop 在每日维护时刻执行产物清理。
func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	for {
		next := nextMaintenance(s.nowFn(), s.cfg.MaintenanceHour)
		timer := time.NewTimer(next.Sub(s.nowFn()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			removed, err := s.sweeper.Sweep()
			if err != nil {
				s.logger.Error("每日维护失败", zap.Error(err))
				continue
			}
			s.logger.Info("每日维护完成", zap.Int("artifacts_removed", removed))
		}
	}
}

// nextMaintenance 返回 now 之后最近的维护时刻。
func nextMaintenance(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
