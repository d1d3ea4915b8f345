// Package lot 维护 (sku, lot) 批次引用索引。
//
// 这是尽力而为的旁路写入：任何失败只记录日志并计数，绝不让外层编辑事务失败。
package lot

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	core "recipetrail/data/db"
	dbsql "recipetrail/data/db/sql"
	"recipetrail/errors"
	"recipetrail/logging"
)

const table = "lot_references"

// FailureCounter 失败计数钩子（由监控层提供）
type FailureCounter interface {
	Inc()
}

// Upserter 批次引用写入器
type Upserter struct {
	logger   logging.Logger
	failures FailureCounter
	now      func() time.Time
	seq      atomic.Uint64
}

// Option 配置项
type Option func(*Upserter)

// WithLogger 指定日志器
func WithLogger(l logging.Logger) Option {
	return func(u *Upserter) { u.logger = logging.ComponentLogger(l, "revision.lot") }
}

// WithFailureCounter 指定失败计数器
func WithFailureCounter(c FailureCounter) Option {
	return func(u *Upserter) { u.failures = c }
}

// WithClock 指定时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(u *Upserter) { u.now = now }
}

func NewUpserter(opts ...Option) *Upserter {
	u := &Upserter{
		logger: logging.ComponentLogger(nil, "revision.lot"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upsert 在 tx 内记录一次 (sku, lot) 使用：存在则刷新 last_used_at，否则插入。
//
// lot 去除首尾空白后为空时不做任何事。写入包在保存点内，失败只回滚保存点，
// 错误（包括 panic）被记录并吞掉。返回值表示是否写入成功，调用方可以忽略。
func (u *Upserter) Upsert(ctx context.Context, tx core.ITransaction, sku, lot string) bool {
	sku, lot = strings.TrimSpace(sku), strings.TrimSpace(lot)
	if lot == "" {
		return false
	}

	savepoint := fmt.Sprintf("lot_ref_%d", u.seq.Add(1))
	err := core.WithSavepoint(ctx, tx, savepoint, func() error {
		return u.upsert(ctx, tx, sku, lot)
	})
	if err != nil {
		u.logger.Warn(ctx, "批次引用写入失败，已忽略",
			logging.String("sku", sku),
			logging.String("lot", lot),
			logging.Error(err),
		)
		if u.failures != nil {
			u.failures.Inc()
		}
		return false
	}
	return true
}

// upsert 单条原生 upsert：(sku, lot) 冲突时只刷新 last_used_at
func (u *Upserter) upsert(ctx context.Context, tx core.IDatabase, sku, lot string) error {
	_, err := dbsql.New(tx).UpsertInto(table).
		Columns("sku", "lot", "last_used_at").
		Values(sku, lot, u.now()).
		Key("sku", "lot").
		Exec(ctx)
	return err
}

// Reference 批次引用
type Reference struct {
	SKU        string    `json:"sku"`
	Lot        string    `json:"lot"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// ListBySKU 列出某 SKU 的全部批次，最近使用的在前
func ListBySKU(ctx context.Context, db core.IDatabase, sku string) ([]Reference, error) {
	rows, err := dbsql.New(db).Select("sku", "lot", "last_used_at").
		From(table).
		Where("sku = ?", sku).
		OrderBy("last_used_at DESC, id DESC").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取批次引用")
	}
	defer rows.Close()

	var out []Reference
	for rows.Next() {
		var ref Reference
		if err := rows.Scan(&ref.SKU, &ref.Lot, &ref.LastUsedAt); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取批次引用")
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取批次引用")
	}
	return out, nil
}
