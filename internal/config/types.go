package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Accounts  []AccountConfig `mapstructure:"accounts"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TradingConfig 控制下单行为与安全边界。
type TradingConfig struct {
	MinOrderNotional float64 `mapstructure:"min_order_notional"`
	FeeRate          float64 `mapstructure:"fee_rate"`
	Simulation       bool    `mapstructure:"simulation"`
}

// SentimentConfig 控制情绪与新闻数据源。
type SentimentConfig struct {
	FearGreedURL string        `mapstructure:"fear_greed_url"`
	NewsURL      string        `mapstructure:"news_url"`
	NewsAPIKey   string        `mapstructure:"news_api_key"`
	NewsQuery    string        `mapstructure:"news_query"`
	NewsLimit    int           `mapstructure:"news_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ArtifactsConfig 管理图表产物目录与保留策略。
type ArtifactsConfig struct {
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
	MaxCount      int    `mapstructure:"max_count"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制调度节奏与波动触发。
type SchedulerConfig struct {
	DefaultInterval     time.Duration `mapstructure:"default_interval"`
	PricePollInterval   time.Duration `mapstructure:"price_poll_interval"`
	VolatilityThreshold float64       `mapstructure:"volatility_threshold"`
	VolatilityCooldown  time.Duration `mapstructure:"volatility_cooldown"`
	MaintenanceHour     int           `mapstructure:"maintenance_hour"`
	RunImmediately      bool          `mapstructure:"run_immediately"`
}

// AccountConfig 描述单个交易账户。密钥仅用于构造客户端，不得写入日志。
type AccountConfig struct {
	ID          string        `mapstructure:"id"`
	AccessKey   string        `mapstructure:"access_key"`
	SecretKey   string        `mapstructure:"secret_key"`
	Interval    time.Duration `mapstructure:"interval"`
	Preferences []string      `mapstructure:"preferences"`
	Active      bool          `mapstructure:"active"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.Trading.MinOrderNotional <= 0 {
		err = multierr.Append(err, errors.New("trading.min_order_notional 必须大于0"))
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		err = multierr.Append(err, errors.New("trading.fee_rate 必须位于[0,1)"))
	}
	if c.Sentiment.FearGreedURL == "" {
		err = multierr.Append(err, errors.New("sentiment.fear_greed_url 不能为空"))
	}
	if c.Sentiment.Timeout <= 0 {
		err = multierr.Append(err, errors.New("sentiment.timeout 必须大于0"))
	}
	if c.Artifacts.Dir == "" {
		err = multierr.Append(err, errors.New("artifacts.dir 不能为空"))
	}
	if c.Artifacts.RetentionDays <= 0 {
		err = multierr.Append(err, errors.New("artifacts.retention_days 必须大于0"))
	}
	if c.Artifacts.MaxCount <= 0 {
		err = multierr.Append(err, errors.New("artifacts.max_count 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.DefaultInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.default_interval 必须大于0"))
	}
	if c.Scheduler.PricePollInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.price_poll_interval 必须大于0"))
	}
	if c.Scheduler.VolatilityThreshold <= 0 || c.Scheduler.VolatilityThreshold >= 1 {
		err = multierr.Append(err, errors.New("scheduler.volatility_threshold 必须位于(0,1)"))
	}
	if c.Scheduler.VolatilityCooldown < 0 {
		err = multierr.Append(err, errors.New("scheduler.volatility_cooldown 不能为负"))
	}
	if c.Scheduler.MaintenanceHour < 0 || c.Scheduler.MaintenanceHour > 23 {
		err = multierr.Append(err, errors.New("scheduler.maintenance_hour 必须位于[0,23]"))
	}
	if len(c.Accounts) == 0 {
		err = multierr.Append(err, errors.New("accounts 至少配置一个账户"))
	}

	seen := make(map[string]struct{}, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.ID == "" {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].id 不能为空", i))
			continue
		}
		if _, ok := seen[account.ID]; ok {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].id 重复: %s", i, account.ID))
		}
		seen[account.ID] = struct{}{}
		if account.Interval < 0 {
			err = multierr.Append(err, fmt.Errorf("accounts[%d].interval 不能为负", i))
		}
		if !c.Trading.Simulation && (account.AccessKey == "" || account.SecretKey == "") {
			err = multierr.Append(err, fmt.Errorf("accounts[%d] 实盘模式需要配置 access_key 与 secret_key", i))
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
