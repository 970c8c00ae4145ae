package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cointrade/internal/artifact"
	"cointrade/internal/chart"
	"cointrade/internal/config"
	"cointrade/internal/cycle"
	"cointrade/internal/decision"
	"cointrade/internal/exchange"
	"cointrade/internal/execution"
	"cointrade/internal/history"
	"cointrade/internal/reflection"
	"cointrade/internal/registry"
	"cointrade/internal/scheduler"
	"cointrade/internal/sentiment"
	"cointrade/internal/snapshot"
	"cointrade/internal/store"
)

// App 组装全部组件并驱动调度器。
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	registry  *registry.Registry
	scheduler *scheduler.Scheduler
}

// New 按配置构建应用。所有账户各自持有交易所客户端与执行器，
// 模型客户端、情绪数据源与历史存储在账户间共享。
func New(cfg *config.Config, logger *zap.Logger, sqlStore *store.Store) (*App, error) {
	historyStore, err := history.NewStore(sqlStore, logger.Named("history"))
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(cfg.Accounts, cfg.Scheduler.DefaultInterval)
	if err != nil {
		return nil, err
	}

	renderer, err := chart.NewRenderer(cfg.Artifacts.Dir, logger.Named("chart"))
	if err != nil {
		return nil, err
	}

	sweeper := artifact.NewSweeper(cfg.Artifacts.Dir, artifact.Policy{
		MaxAge:   time.Duration(cfg.Artifacts.RetentionDays) * 24 * time.Hour,
		MaxCount: cfg.Artifacts.MaxCount,
	}, logger.Named("artifact"))

	sentimentClient := sentiment.NewClient(cfg.Sentiment, logger.Named("sentiment"))
	decider := decision.NewProvider(cfg.OpenAI, logger.Named("decision"))
	reflector := reflection.NewEngine(reflection.NewModelCritic(cfg.OpenAI), logger.Named("reflection"))

	// 波动监控只读公开行情，使用无密钥的共享客户端。
	priceSource, err := exchange.NewClient(cfg.Exchange, exchange.Credentials{}, logger.Named("prices"))
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(cfg.Scheduler, reg, priceSource, sweeper, logger.Named("scheduler"))

	for _, account := range reg.All() {
		client, clientErr := exchange.NewClient(cfg.Exchange, exchange.Credentials{
			AccessKey: account.AccessKey,
			SecretKey: account.SecretKey,
		}, logger.Named("exchange").With(zap.String("account_id", account.ID)))
		if clientErr != nil {
			return nil, fmt.Errorf("构建账户 %s 的交易所客户端失败: %w", account.ID, clientErr)
		}

		var executor execution.Executor
		if cfg.Trading.Simulation {
			executor = execution.NewSimulatedExecutor(cfg.Trading, logger.Named("execution"))
		} else {
			executor = execution.NewLiveExecutor(cfg.Trading, client, logger.Named("execution"))
		}

		collector := snapshot.NewCollector(
			account.ID,
			client,
			sentimentClient,
			historyStore,
			renderer,
			logger.Named("snapshot"),
		)

		runner := cycle.NewRunner(
			account.ID,
			account.Preferences,
			collector,
			reflector,
			decider,
			executor,
			historyStore,
			logger.Named("cycle"),
		)

		if addErr := sched.AddAccount(account.ID, account.Interval, runner); addErr != nil {
			return nil, addErr
		}
	}

	logger.Info("应用初始化完成",
		zap.Int("accounts", len(reg.All())),
		zap.Int("active_accounts", len(reg.Active())),
		zap.Bool("simulation", cfg.Trading.Simulation),
	)

	return &App{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		scheduler: sched,
	}, nil
}

// Run 启动调度器并阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	return a.scheduler.Run(ctx)
}

// Registry 返回账户注册表，供运行期启停账户。
func (a *App) Registry() *registry.Registry {
	return a.registry
}
