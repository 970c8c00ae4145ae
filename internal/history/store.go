package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cointrade/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycle_records (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id              TEXT    NOT NULL,
	timestamp               TEXT    NOT NULL,
	trigger_kind            TEXT    NOT NULL,
	price_change_pct        REAL    NOT NULL DEFAULT 0,
	action                  TEXT    NOT NULL,
	percentage              REAL    NOT NULL,
	reason                  TEXT    NOT NULL,
	risk_level              TEXT    NOT NULL,
	confidence              INTEGER NOT NULL,
	quote_balance           REAL    NOT NULL,
	base_balance            REAL    NOT NULL,
	avg_entry_price         REAL    NOT NULL,
	price                   REAL    NOT NULL,
	exec_attempted          INTEGER NOT NULL,
	exec_succeeded          INTEGER NOT NULL,
	exec_amount             REAL    NOT NULL,
	exec_reason             TEXT    NOT NULL,
	strategy_analysis       TEXT    NOT NULL DEFAULT '',
	key_patterns            TEXT    NOT NULL DEFAULT '',
	improvement_suggestions TEXT    NOT NULL DEFAULT '',
	chart_path              TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycle_records_account_ts
	ON cycle_records (account_id, timestamp DESC);
`

// Store 基于 SQLite 持久化周期记录，并从历史中推导账户的持仓成本。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore 创建历史存储并初始化表结构。
func NewStore(s *store.Store, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := s.DB().Exec(schema); err != nil {
		return nil, fmt.Errorf("history: 初始化表结构失败: %w", err)
	}
	return &Store{db: s.DB(), logger: logger}, nil
}

// Append 追加一条周期记录，返回其自增ID。
func (s *Store) Append(ctx context.Context, rec Record) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cycle_records (
			account_id, timestamp, trigger_kind, price_change_pct,
			action, percentage, reason, risk_level, confidence,
			quote_balance, base_balance, avg_entry_price, price,
			exec_attempted, exec_succeeded, exec_amount, exec_reason,
			strategy_analysis, key_patterns, improvement_suggestions, chart_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AccountID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.Trigger,
		rec.PriceChangePct,
		rec.Action,
		rec.Percentage,
		rec.Reason,
		rec.RiskLevel,
		rec.Confidence,
		rec.QuoteBalance,
		rec.BaseBalance,
		rec.AvgEntryPrice,
		rec.Price,
		boolToInt(rec.ExecAttempted),
		boolToInt(rec.ExecSucceeded),
		rec.ExecAmount,
		rec.ExecReason,
		rec.StrategyAnalysis,
		rec.KeyPatterns,
		rec.ImprovementSuggestions,
		rec.ChartPath,
	)
	if err != nil {
		return 0, fmt.Errorf("history: 写入周期记录失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: 获取记录ID失败: %w", err)
	}
	return id, nil
}

// RecentRecords 返回指定账户最近的 n 条记录，按时间从新到旧。
func (s *Store) RecentRecords(ctx context.Context, accountID string, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, timestamp, trigger_kind, price_change_pct,
			action, percentage, reason, risk_level, confidence,
			quote_balance, base_balance, avg_entry_price, price,
			exec_attempted, exec_succeeded, exec_amount, exec_reason,
			strategy_analysis, key_patterns, improvement_suggestions, chart_path
		FROM cycle_records
		WHERE account_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, accountID, n)
	if err != nil {
		return nil, fmt.Errorf("history: 查询历史记录失败: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, n)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: 遍历历史记录失败: %w", err)
	}
	return records, nil
}

// LatestReflection 返回指定账户最近一条记录携带的回顾内容。
// 无历史时返回零值与 false。
func (s *Store) LatestReflection(ctx context.Context, accountID string) (ReflectionFields, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT strategy_analysis, key_patterns, improvement_suggestions
		FROM cycle_records
		WHERE account_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, accountID)

	var rf ReflectionFields
	if err := row.Scan(&rf.StrategyAnalysis, &rf.KeyPatterns, &rf.ImprovementSuggestions); err != nil {
		if err == sql.ErrNoRows {
			return ReflectionFields{}, false, nil
		}
		return ReflectionFields{}, false, fmt.Errorf("history: 查询最近回顾失败: %w", err)
	}
	return rf, true, nil
}

// AvgBuyPrice 从成功买入的历史记录推导加权平均持仓成本。
// 以最近一次基础币余额近似清零（< dust）的记录为起点，只统计其后的买入。
// 没有可统计的买入时返回 0。
func (s *Store) AvgBuyPrice(ctx context.Context, accountID string, dust float64) (float64, error) {
	records, err := s.RecentRecords(ctx, accountID, 200)
	if err != nil {
		return 0, err
	}

	// records 为新到旧，截断到最近一次空仓为止。
	window := records
	for i, rec := range records {
		if rec.BaseBalance <= dust {
			window = records[:i]
			break
		}
	}

	var totalCost, totalAmount float64
	for _, rec := range window {
		if rec.Action != "buy" || !rec.ExecSucceeded || rec.ExecAmount <= 0 || rec.Price <= 0 {
			continue
		}
		// ExecAmount 为买入花费的计价币金额。
		totalCost += rec.ExecAmount
		totalAmount += rec.ExecAmount / rec.Price
	}

	if totalAmount <= 0 {
		return 0, nil
	}
	return totalCost / totalAmount, nil
}

// HoursSinceLastTrade 返回距离上一次成交的小时数。无成交历史时返回 0 与 false。
func (s *Store) HoursSinceLastTrade(ctx context.Context, accountID string, now time.Time) (float64, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp
		FROM cycle_records
		WHERE account_id = ? AND exec_succeeded = 1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, accountID)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("history: 查询最近成交失败: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, false, fmt.Errorf("history: 解析成交时间失败: %w", err)
	}
	return now.Sub(ts).Hours(), true, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec       Record
		rawTS     string
		attempted int
		succeeded int
	)
	err := rows.Scan(
		&rec.ID, &rec.AccountID, &rawTS, &rec.Trigger, &rec.PriceChangePct,
		&rec.Action, &rec.Percentage, &rec.Reason, &rec.RiskLevel, &rec.Confidence,
		&rec.QuoteBalance, &rec.BaseBalance, &rec.AvgEntryPrice, &rec.Price,
		&attempted, &succeeded, &rec.ExecAmount, &rec.ExecReason,
		&rec.StrategyAnalysis, &rec.KeyPatterns, &rec.ImprovementSuggestions, &rec.ChartPath,
	)
	if err != nil {
		return Record{}, fmt.Errorf("history: 读取记录行失败: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, rawTS)
	if err != nil {
		return Record{}, fmt.Errorf("history: 解析记录时间失败: %w", err)
	}
	rec.Timestamp = ts
	rec.ExecAttempted = attempted == 1
	rec.ExecSucceeded = succeeded == 1
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
